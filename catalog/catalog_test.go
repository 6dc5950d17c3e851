package catalog

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/gametrack/models"
	"github.com/wfunc/gametrack/persistence"
)

func newTestService(t *testing.T) (*Service, *persistence.Memory) {
	t.Helper()
	db := persistence.NewMemory()
	return NewService(db, 10, 100), db
}

func seedGame(t *testing.T, db *persistence.Memory, id, name string, released time.Time) {
	t.Helper()
	err := db.CreateGame(models.Game{
		ID:          id,
		Name:        name,
		Genre:       "adventure",
		ReleaseDate: released,
		AddedBy:     "user-1",
	}, models.Cover{Data: []byte{0x1}, ContentType: "image/png"})
	require.NoError(t, err)
}

func day(n int) time.Time {
	return time.Date(2020, 1, n, 0, 0, 0, 0, time.UTC)
}

func TestListGames_PageSizeAndTotal(t *testing.T) {
	svc, db := newTestService(t)
	for i := 1; i <= 23; i++ {
		seedGame(t, db, fmt.Sprintf("g%02d", i), fmt.Sprintf("Game %02d", i), day(i))
	}

	result, err := svc.ListGames("", 1, 5, SortNameAsc)
	require.NoError(t, err)

	assert.Len(t, result.Games, 5)
	assert.EqualValues(t, 23, result.TotalCount, "total must ignore pagination")
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 5, result.Limit)

	// Last page holds the remainder.
	last, err := svc.ListGames("", 5, 5, SortNameAsc)
	require.NoError(t, err)
	assert.Len(t, last.Games, 3)
	assert.EqualValues(t, 23, last.TotalCount)
}

func TestListGames_FilterAndSort(t *testing.T) {
	svc, db := newTestService(t)
	seedGame(t, db, "g1", "The Legend of Zelda", day(1))
	seedGame(t, db, "g2", "Zelda II", day(5))
	seedGame(t, db, "g3", "Metroid", day(3))
	seedGame(t, db, "g4", "A Link to the Past", day(8))

	result, err := svc.ListGames("zelda", 1, 10, SortReleaseDateDesc)
	require.NoError(t, err)

	require.Len(t, result.Games, 2)
	assert.EqualValues(t, 2, result.TotalCount, "count must respect the filter")
	assert.Equal(t, "Zelda II", result.Games[0].Name)
	assert.Equal(t, "The Legend of Zelda", result.Games[1].Name)
}

func TestListGames_FilteredSeriesPage(t *testing.T) {
	svc, db := newTestService(t)
	for i := 1; i <= 7; i++ {
		seedGame(t, db, fmt.Sprintf("z%d", i), fmt.Sprintf("Zelda Chapter %d", i), day(i))
	}
	seedGame(t, db, "g1", "Metroid", day(20))
	seedGame(t, db, "g2", "Pikmin", day(21))

	result, err := svc.ListGames("Zelda", 1, 5, SortReleaseDateDesc)
	require.NoError(t, err)

	require.Len(t, result.Games, 5)
	assert.EqualValues(t, 7, result.TotalCount)
	for i := 1; i < len(result.Games); i++ {
		assert.False(t, result.Games[i-1].ReleaseDate.Before(result.Games[i].ReleaseDate),
			"release dates must be non-increasing")
	}
	assert.Equal(t, "Zelda Chapter 7", result.Games[0].Name)
	assert.Equal(t, 2, result.Window.TotalPages)
}

func TestListGames_SortOrders(t *testing.T) {
	svc, db := newTestService(t)
	seedGame(t, db, "g1", "banana", day(3))
	seedGame(t, db, "g2", "Apple", day(1))
	seedGame(t, db, "g3", "cherry", day(2))

	cases := []struct {
		sortKey string
		first   string
	}{
		{SortNameAsc, "Apple"},
		{SortNameDesc, "cherry"},
		{SortReleaseDateAsc, "Apple"},
		{SortReleaseDateDesc, "banana"},
		{"bogus_sort", "Apple"}, // silent fallback to name_asc
		{"", "Apple"},
	}
	for _, tc := range cases {
		result, err := svc.ListGames("", 1, 10, tc.sortKey)
		require.NoError(t, err, tc.sortKey)
		require.NotEmpty(t, result.Games, tc.sortKey)
		assert.Equal(t, tc.first, result.Games[0].Name, "sort %q", tc.sortKey)
	}
}

func TestListGames_NormalizesPageAndLimit(t *testing.T) {
	svc, db := newTestService(t)
	for i := 1; i <= 12; i++ {
		seedGame(t, db, fmt.Sprintf("g%02d", i), fmt.Sprintf("Game %02d", i), day(i))
	}

	// page < 1 becomes 1, limit < 1 becomes the default (10)
	result, err := svc.ListGames("", 0, 0, SortNameAsc)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 10, result.Limit)
	assert.Len(t, result.Games, 10)

	// limit above the maximum is clamped
	result, err = svc.ListGames("", 1, 9999, SortNameAsc)
	require.NoError(t, err)
	assert.Equal(t, 100, result.Limit)
}

func TestListGames_PageBeyondEnd(t *testing.T) {
	svc, db := newTestService(t)
	seedGame(t, db, "g1", "Only Game", day(1))

	result, err := svc.ListGames("", 50, 10, SortNameAsc)
	require.NoError(t, err)
	assert.Empty(t, result.Games)
	assert.EqualValues(t, 1, result.TotalCount)
}

func TestGetGameInfo(t *testing.T) {
	svc, db := newTestService(t)
	seedGame(t, db, "g1", "Metroid", day(1))

	game, err := svc.GetGameInfo("g1")
	require.NoError(t, err)
	assert.Equal(t, "Metroid", game.Name)

	_, err = svc.GetGameInfo("missing")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestGetGameCover(t *testing.T) {
	svc, db := newTestService(t)
	seedGame(t, db, "g1", "Metroid", day(1))

	cover, err := svc.GetGameCover("g1")
	require.NoError(t, err)
	assert.Equal(t, "image/png", cover.ContentType)

	_, err = svc.GetGameCover("missing")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestCreateGame(t *testing.T) {
	svc, _ := newTestService(t)

	game, err := svc.CreateGame("Hollow Knight", "metroidvania", "bug adventure",
		day(10), "user-1", models.Cover{Data: []byte{0x1}, ContentType: "image/png"})
	require.NoError(t, err)
	assert.NotEmpty(t, game.ID)
	assert.Equal(t, "user-1", game.AddedBy)

	fetched, err := svc.GetGameInfo(game.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hollow Knight", fetched.Name)
}

func TestCreateGame_RequiresCover(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateGame("No Cover", "indie", "", day(1), "user-1", models.Cover{})
	assert.ErrorIs(t, err, ErrCoverMissing)
}

func TestGamesAddedBy(t *testing.T) {
	svc, db := newTestService(t)
	seedGame(t, db, "g1", "Mine", day(1))
	err := db.CreateGame(models.Game{ID: "g2", Name: "Theirs", AddedBy: "user-2"},
		models.Cover{Data: []byte{0x1}})
	require.NoError(t, err)

	games, err := svc.GamesAddedBy("user-1")
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Mine", games[0].Name)

	none, err := svc.GamesAddedBy("user-3")
	require.NoError(t, err)
	assert.Empty(t, none)
}
