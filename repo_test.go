package buildtracker_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-buildtracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfiles_FindProfile(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Profiles().FindProfile(ctx, "u1")
	require.Error(t, err)
	assert.True(t, buildtracker.IsRecordNotFound(err))

	_, err = repo.Profiles().FindProfile(ctx, "")
	assert.True(t, buildtracker.IsRecordNotFound(err))

	_, err = repo.Profiles().Save(ctx, &buildtracker.Profile{ID: "u1", FullName: "Jane Doe"})
	require.NoError(t, err)

	profile, err := repo.Profiles().FindProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", profile.FullName)
	assert.NotNil(t, profile.CreatedAt)
}

func TestProfiles_AsProfileFinder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Profiles().Save(ctx, &buildtracker.Profile{ID: "u1", DisplayName: "Janey"})
	require.NoError(t, err)

	source := &stubSource{session: &buildtracker.Session{UserID: "u1", Email: "jane@x.com"}}
	identity := newResolver(source, repo.Profiles()).ResolveIdentity(ctx)
	assert.Equal(t, "Janey", identity.Name())

	source.set(&buildtracker.Session{UserID: "u3", Email: "sam@x.com"})
	identity = newResolver(source, repo.Profiles()).ResolveIdentity(ctx)
	assert.Equal(t, "sam", identity.Name())
}

func TestBuilds_Listing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Profiles().Save(ctx, &buildtracker.Profile{ID: "u1", DisplayName: "Janey"})
	require.NoError(t, err)

	createBuild(t, repo, "u1", buildFields("Public one"))
	private := buildFields("Private one")
	private.Visibility = buildtracker.VisibilityPrivate
	createBuild(t, repo, "u1", private)
	createBuild(t, repo, "u2", buildFields("Someone else"))

	public, err := repo.Builds().ListPublic(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, public, 2)
	for _, b := range public {
		assert.Equal(t, buildtracker.VisibilityPublic, b.Visibility)
	}

	mine, err := repo.Builds().ListByOwner(ctx, "u1", true)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	visible, err := repo.Builds().ListByOwner(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "Public one", visible[0].Name)

	limited, err := repo.Builds().ListPublic(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestBuilds_GetBuildLoadsOwner(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Profiles().Save(ctx, &buildtracker.Profile{ID: "u1", DisplayName: "Janey"})
	require.NoError(t, err)
	build := createBuild(t, repo, "u1", buildFields("Datsun"))

	stored, err := repo.Builds().GetBuild(ctx, build.ID.String())
	require.NoError(t, err)
	require.NotNil(t, stored.Owner)
	assert.Equal(t, "Janey", stored.Owner.Name())
}
