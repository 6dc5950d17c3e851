package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/gametrack/models"
)

func seedCatalog(t *testing.T, m *Memory) {
	t.Helper()
	games := []models.Game{
		{ID: "g1", Name: "Banjo-Kazooie", ReleaseDate: time.Date(1998, 6, 29, 0, 0, 0, 0, time.UTC)},
		{ID: "g2", Name: "axiom Verge", ReleaseDate: time.Date(2015, 3, 31, 0, 0, 0, 0, time.UTC)},
		{ID: "g3", Name: "Celeste", ReleaseDate: time.Date(2018, 1, 25, 0, 0, 0, 0, time.UTC)},
	}
	for _, g := range games {
		require.NoError(t, m.CreateGame(g, models.Cover{Data: []byte{0x1}}))
	}
}

func TestMemory_ListGames_SortIsCaseInsensitive(t *testing.T) {
	m := NewMemory()
	seedCatalog(t, m)

	games, err := m.ListGames(GameFilter{Sort: SortNameAsc, Limit: 10})
	require.NoError(t, err)

	require.Len(t, games, 3)
	assert.Equal(t, "axiom Verge", games[0].Name)
	assert.Equal(t, "Banjo-Kazooie", games[1].Name)
	assert.Equal(t, "Celeste", games[2].Name)
}

func TestMemory_ListGames_FilterIsCaseInsensitive(t *testing.T) {
	m := NewMemory()
	seedCatalog(t, m)

	games, err := m.ListGames(GameFilter{NameContains: "BANJO", Limit: 10})
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "g1", games[0].ID)

	count, err := m.CountGames("banjo")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestMemory_ListGames_OffsetPastEnd(t *testing.T) {
	m := NewMemory()
	seedCatalog(t, m)

	games, err := m.ListGames(GameFilter{Offset: 10, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestMemory_ListGames_ReleaseDateSort(t *testing.T) {
	m := NewMemory()
	seedCatalog(t, m)

	games, err := m.ListGames(GameFilter{Sort: SortReleaseDateDesc, Limit: 10})
	require.NoError(t, err)
	require.Len(t, games, 3)
	assert.Equal(t, "Celeste", games[0].Name)
	assert.Equal(t, "Banjo-Kazooie", games[2].Name)
}

func TestMemory_DuplicateGame(t *testing.T) {
	m := NewMemory()
	g := models.Game{ID: "g1", Name: "First"}
	require.NoError(t, m.CreateGame(g, models.Cover{Data: []byte{0x1}}))

	err := m.CreateGame(g, models.Cover{Data: []byte{0x1}})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemory_UserGameLifecycle(t *testing.T) {
	m := NewMemory()
	seedCatalog(t, m)

	assoc := models.UserGame{UserID: "u1", GameID: "g1", Status: models.StatusPlayed}
	require.NoError(t, m.UpsertUserGame(assoc))

	// Upsert overwrites in place.
	assoc.Rating = 9
	require.NoError(t, m.UpsertUserGame(assoc))

	got, err := m.GetUserGame("u1", "g1")
	require.NoError(t, err)
	assert.Equal(t, 9, got.Rating)

	entries, err := m.ListUserGames("u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Banjo-Kazooie", entries[0].Game.Name)

	require.NoError(t, m.DeleteUserGame("u1", "g1"))
	_, err = m.GetUserGame("u1", "g1")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestMemory_UsernameIndexFollowsRename(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.CreateUser(models.User{ID: "u1", Username: "alice"}))

	require.NoError(t, m.UpdateUser(models.User{ID: "u1", Username: "alicia"}))

	_, err := m.GetUserByUsername("alice")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	user, err := m.GetUserByUsername("alicia")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
}
