package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSceneDate(t *testing.T) {
	d, ok := SceneDate(granuleA, DailyKeyLen)
	require.True(t, ok)
	assert.Equal(t, time.Date(2019, 1, 5, 0, 0, 0, 0, time.UTC), d)

	m, ok := SceneDate("201907", MonthlyKeyLen)
	require.True(t, ok)
	assert.Equal(t, time.Date(2019, 7, 1, 0, 0, 0, 0, time.UTC), m)

	for _, bad := range []string{"2019", "2019XX05T1", "20191305T1"} {
		_, ok := SceneDate(bad, DailyKeyLen)
		assert.False(t, ok, bad)
	}
	_, ok = SceneDate("20190105", 4)
	assert.False(t, ok)
}

func TestSceneQuery_Includes(t *testing.T) {
	ds := testDataset(t)

	t.Run("profile window", func(t *testing.T) {
		q := SceneQuery{Dataset: ds}
		assert.False(t, q.Includes("20181231T1"))
		assert.True(t, q.Includes("20190101T1"))
		assert.True(t, q.Includes("20221230T1"))
		assert.False(t, q.Includes("20221231T1"), "end is exclusive")
	})

	t.Run("explicit window", func(t *testing.T) {
		q := SceneQuery{
			Dataset: ds,
			Start:   time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
			End:     time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC),
		}
		assert.True(t, q.Includes("20200601T1"))
		assert.True(t, q.Includes("20200630T1"))
		assert.False(t, q.Includes("20200701T1"))
		assert.False(t, q.Includes("garbage"))
	})

	t.Run("open ended monthly", func(t *testing.T) {
		tc, err := LookupDataset("terraclimate")
		require.NoError(t, err)
		q := SceneQuery{Dataset: tc}
		assert.False(t, q.Includes("195712"))
		assert.True(t, q.Includes("202412"))
	})
}
