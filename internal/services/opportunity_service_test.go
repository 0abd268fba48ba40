package services

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushub/backend/internal/models"
	"github.com/campushub/backend/internal/testutil"
	"github.com/campushub/backend/internal/utils"
)

func TestOpportunityLifecycle(t *testing.T) {
	db := testutil.NewTestDB(t)
	owner := testutil.CreateProfile(t, db, "owner")
	other := testutil.CreateProfile(t, db, "other")
	svc := NewOpportunityService(db, testutil.TestConfig(), NewMarkdownService())

	opp, err := svc.Create(owner.ID, &CreateOpportunityRequest{
		Kind:        models.OpportunityKindItem,
		Title:       "  Used textbook  ",
		Description: "**Organic chemistry**, 3rd edition <script>alert(1)</script>",
		Price:       decimal.RequireFromString("35.50"),
		Tags:        []string{"books"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Used textbook", opp.Title)
	assert.Equal(t, "GHS", opp.Currency)
	assert.Equal(t, models.OpportunityStatusOpen, opp.Status)
	assert.Contains(t, opp.DescriptionHTML, "<strong>Organic chemistry</strong>")
	assert.NotContains(t, opp.DescriptionHTML, "<script>")
	assert.JSONEq(t, `["books"]`, string(opp.Tags))
	assert.JSONEq(t, `[]`, string(opp.Images))

	got, err := svc.Get(opp.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Owner)
	assert.Equal(t, owner.ID, got.Owner.ID)
	assert.True(t, decimal.RequireFromString("35.5").Equal(got.Price))

	var views int64
	require.NoError(t, db.Model(&models.Opportunity{}).Select("view_count").Where("id = ?", opp.ID).Scan(&views).Error)
	assert.Equal(t, int64(1), views)

	title := "Chemistry textbook"
	_, err = svc.Update(other.ID, opp.ID, &UpdateOpportunityRequest{Title: &title})
	assert.ErrorIs(t, err, ErrNotOpportunityOwner)

	sold := models.OpportunityStatusSold
	updated, err := svc.Update(owner.ID, opp.ID, &UpdateOpportunityRequest{Title: &title, Status: &sold})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, models.OpportunityStatusSold, updated.Status)

	withImage, err := svc.AddImage(owner.ID, opp.ID, "https://cdn.test/listings/a.png")
	require.NoError(t, err)
	var images []string
	require.NoError(t, json.Unmarshal(withImage.Images, &images))
	assert.Equal(t, []string{"https://cdn.test/listings/a.png"}, images)

	assert.ErrorIs(t, svc.Delete(other.ID, opp.ID), ErrNotOpportunityOwner)
	require.NoError(t, svc.Delete(owner.ID, opp.ID))
	_, err = svc.Get(opp.ID)
	assert.ErrorIs(t, err, ErrOpportunityNotFound)
	_, err = svc.Get(uuid.New())
	assert.ErrorIs(t, err, ErrOpportunityNotFound)
}

func TestOpportunitySearch(t *testing.T) {
	db := testutil.NewTestDB(t)
	owner := testutil.CreateProfile(t, db, "owner")
	svc := NewOpportunityService(db, testutil.TestConfig(), NewMarkdownService())

	testutil.CreateOpportunity(t, db, owner, models.OpportunityKindJob, "Library assistant", decimal.NewFromInt(12))
	testutil.CreateOpportunity(t, db, owner, models.OpportunityKindInternship, "Software intern", decimal.Zero)
	closed := testutil.CreateOpportunity(t, db, owner, models.OpportunityKindJob, "Lab assistant", decimal.NewFromInt(15))
	require.NoError(t, db.Model(closed).Update("status", models.OpportunityStatusClosed).Error)

	params := func(p utils.PaginationParams) OpportunitySearchParams {
		return OpportunitySearchParams{PaginationParams: utils.NormalizePagination(p)}
	}

	results, total, err := svc.Search(params(utils.PaginationParams{}))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, results, 2)

	results, total, err = svc.Search(params(utils.PaginationParams{Kind: "job"}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Library assistant", results[0].Title)

	_, total, err = svc.Search(params(utils.PaginationParams{Search: "ASSISTANT"}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, total, err = svc.Search(params(utils.PaginationParams{Status: "closed"}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	// Owners see their listings in every status
	mine := params(utils.PaginationParams{})
	mine.OwnerID = &owner.ID
	_, total, err = svc.Search(mine)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	latest, err := svc.Latest(models.OpportunityKindJob, 5)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "Library assistant", latest[0].Title)
}

func TestUserProfileUpdates(t *testing.T) {
	db := testutil.NewTestDB(t)
	first := testutil.CreateProfile(t, db, "first", testutil.WithPhone("+233200000001"))
	second := testutil.CreateProfile(t, db, "second")
	svc := NewUserService(db)

	phone := "+233200000001"
	_, err := svc.UpdateProfile(second.ID, &UpdateProfileRequest{PhoneNumber: &phone})
	assert.ErrorIs(t, err, ErrPhoneInUse)

	name := " Second Student "
	wallet := testSellerWallet
	newPhone := "+233200000002"
	updated, err := svc.UpdateProfile(second.ID, &UpdateProfileRequest{
		DisplayName:   &name,
		WalletAddress: &wallet,
		PhoneNumber:   &newPhone,
	})
	require.NoError(t, err)
	assert.Equal(t, "Second Student", updated.DisplayName)
	assert.True(t, updated.Complete())

	found, err := svc.FindByPhone(newPhone)
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)

	empty := ""
	_, err = svc.UpdateProfile(first.ID, &UpdateProfileRequest{PhoneNumber: &empty})
	require.NoError(t, err)
	_, err = svc.FindByPhone(phone)
	assert.ErrorIs(t, err, ErrProfileNotFound)

	testutil.CreateOpportunity(t, db, second, models.OpportunityKindItem, "Kettle", decimal.NewFromInt(8))
	public, err := svc.GetPublicProfile(second.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), public.ListingCount)
	assert.Equal(t, "second", public.Username)

	_, err = svc.GetPublicProfile(uuid.New())
	assert.ErrorIs(t, err, ErrProfileNotFound)
}
