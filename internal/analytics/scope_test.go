package analytics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestScope(t *testing.T) {
	all := AllCampaigns()
	assert.True(t, all.Unrestricted())
	assert.True(t, all.Contains("anything"))
	assert.Nil(t, all.IDs())
	assert.True(t, all.Filter(TimeRange{}).AllCampaigns)

	some := Campaigns("b", "a", "b")
	assert.False(t, some.Unrestricted())
	assert.True(t, some.Contains("a"))
	assert.False(t, some.Contains("c"))
	assert.Equal(t, []string{"a", "b"}, some.IDs())

	none := Campaigns()
	assert.False(t, none.Contains("a"))
	assert.True(t, none.Filter(TimeRange{}).MatchesNothing())
}

func TestResolve_AdminSeesAll(t *testing.T) {
	dir := new(MockCampaignDirectory)
	resolver := NewScopeResolver(dir, nil)

	scope, err := resolver.Resolve(context.Background(), models.Requester{ID: "root", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.True(t, scope.Unrestricted())
	dir.AssertNotCalled(t, "FindByOwner", mock.Anything, mock.Anything)
}

func TestResolve_OwnerSeesOwnedOnly(t *testing.T) {
	resolver := NewScopeResolver(newDirectory(campaign("A", "u1"), campaign("B", "u1"), campaign("C", "u2")), nil)

	scope, err := resolver.Resolve(context.Background(), models.Requester{ID: "u1", Role: "advertiser"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, scope.IDs())
}

func TestResolve_NoCampaignsIsEmptyNotAll(t *testing.T) {
	resolver := NewScopeResolver(newDirectory(campaign("A", "u1")), nil)

	scope, err := resolver.Resolve(context.Background(), models.Requester{ID: "u9", Role: "advertiser"})
	require.NoError(t, err)
	assert.False(t, scope.Unrestricted())
	assert.Empty(t, scope.IDs())
}

func TestResolve_DirectoryFailure(t *testing.T) {
	dir := new(MockCampaignDirectory)
	dir.On("FindByOwner", mock.Anything, "u1").Return(nil, errors.New("timeout"))

	_, err := NewScopeResolver(dir, nil).Resolve(context.Background(), models.Requester{ID: "u1"})
	assert.ErrorIs(t, err, ErrStoreFailure)
}

func TestAuthorize(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("test", reg)
	resolver := NewScopeResolver(newDirectory(campaign("A", "u1"), campaign("C", "u2")), m)
	ctx := context.Background()

	c, err := resolver.Authorize(ctx, Campaigns("A"), "A")
	require.NoError(t, err)
	assert.Equal(t, "A", c.ID)

	// Another owner's campaign and a campaign that does not exist look the same.
	_, err = resolver.Authorize(ctx, Campaigns("A"), "C")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = resolver.Authorize(ctx, Campaigns("A"), "missing")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = resolver.Authorize(ctx, Campaigns(), "A")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = resolver.Authorize(ctx, AllCampaigns(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = resolver.Authorize(ctx, Campaigns("gone"), "gone")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.AccessDenials.WithLabelValues("out_of_scope")))
}
