package store

import (
	"context"
	"testing"

	"github.com/Lllllllleong/gazetteflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func sampleRecords() []models.StudentRecord {
	return []models.StudentRecord{
		{
			SeatNo: "S1", Name: "RAHUL SHARMA", GrandTotal: intPtr(425), SGPA: []float64{7.2, 7.8}, CGPA: floatPtr(7.5), Remark: "PASSES",
			Subjects: []models.SubjectScore{
				{Name: "SHM-133 Physics", Total: 60, Grade: "A", GradePoint: 8},
				{Name: "SHM-134 Chemistry", Total: 48, Grade: "B", GradePoint: 6},
			},
		},
		{
			SeatNo: "S2", Name: "PRIYA DESAI", GrandTotal: intPtr(510), CGPA: floatPtr(9.1), Remark: "PASSES",
			Subjects: []models.SubjectScore{
				{Name: "SHM-133 Physics", Total: 72, Grade: "O", GradePoint: 10},
			},
		},
		{
			SeatNo: "S3", Name: "AMIT KUMAR", GrandTotal: intPtr(300), CGPA: floatPtr(0), Remark: "FAILS",
			Subjects: []models.SubjectScore{
				{Name: "SHM-133 Physics", Total: 20, Grade: "F", GradePoint: 0},
			},
		},
		{SeatNo: "S4", Name: "NEHA JOSHI", Subjects: []models.SubjectScore{}},
	}
}

func names(records []models.StudentRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}

// runStoreSuite exercises the Store contract against any backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		s := newStore(t)
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		_, ok, err := s.AverageCGPA(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		groups, err := s.CountByRemark(ctx)
		require.NoError(t, err)
		assert.Empty(t, groups)

		values, err := s.CGPAValues(ctx)
		require.NoError(t, err)
		assert.NotNil(t, values)
		assert.Empty(t, values)

		found, err := s.Find(ctx, Query{})
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("replace keeps order and content", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ReplaceAll(ctx, sampleRecords()))

		found, err := s.Find(ctx, Query{})
		require.NoError(t, err)
		require.Len(t, found, 4)
		assert.Equal(t, []string{"RAHUL SHARMA", "PRIYA DESAI", "AMIT KUMAR", "NEHA JOSHI"}, names(found))
		assert.Equal(t, sampleRecords()[0], found[0])
		assert.NotNil(t, found[3].Subjects)
		assert.Nil(t, found[3].GrandTotal)
		assert.Nil(t, found[3].CGPA)
	})

	t.Run("replace discards previous contents", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ReplaceAll(ctx, sampleRecords()))
		next := []models.StudentRecord{{SeatNo: "X1", Name: "NEW STUDENT", Subjects: []models.SubjectScore{}}}
		require.NoError(t, s.ReplaceAll(ctx, next))

		found, err := s.Find(ctx, Query{})
		require.NoError(t, err)
		assert.Equal(t, []string{"NEW STUDENT"}, names(found))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("replace is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ReplaceAll(ctx, sampleRecords()))
		first, err := s.Find(ctx, Query{})
		require.NoError(t, err)
		require.NoError(t, s.ReplaceAll(ctx, sampleRecords()))
		second, err := s.Find(ctx, Query{})
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("aggregations", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ReplaceAll(ctx, sampleRecords()))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		avg, ok, err := s.AverageCGPA(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.InDelta(t, (7.5+9.1+0)/3, avg, 1e-9)

		groups, err := s.CountByRemark(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.RemarkCount{
			{ID: strPtr("PASSES"), Count: 2},
			{ID: nil, Count: 1},
			{ID: strPtr("FAILS"), Count: 1},
		}, groups)

		values, err := s.CGPAValues(ctx)
		require.NoError(t, err)
		assert.Equal(t, []float64{7.5, 9.1}, values)
	})

	t.Run("find by subject and grade", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ReplaceAll(ctx, sampleRecords()))

		found, err := s.Find(ctx, Query{Filter: Filter{Subject: CompilePattern("physics"), Grade: "a"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"RAHUL SHARMA"}, names(found))

		found, err = s.Find(ctx, Query{Filter: Filter{Subject: CompilePattern("chemistry"), Grade: "O"}})
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("find by name and remark", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ReplaceAll(ctx, sampleRecords()))

		found, err := s.Find(ctx, Query{Filter: Filter{Name: CompilePattern("rahul")}, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"RAHUL SHARMA"}, names(found))

		found, err = s.Find(ctx, Query{Filter: Filter{Remark: CompilePattern("^pass")}})
		require.NoError(t, err)
		assert.Equal(t, []string{"RAHUL SHARMA", "PRIYA DESAI"}, names(found))
	})

	t.Run("sort puts missing values last", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ReplaceAll(ctx, sampleRecords()))

		found, err := s.Find(ctx, Query{Sort: SortGrandTotal, Descending: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"PRIYA DESAI", "RAHUL SHARMA", "AMIT KUMAR", "NEHA JOSHI"}, names(found))

		found, err = s.Find(ctx, Query{Sort: SortCGPA, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"AMIT KUMAR", "RAHUL SHARMA"}, names(found))

		found, err = s.Find(ctx, Query{Sort: SortGrandTotal, Descending: true, Limit: 1, Filter: Filter{Remark: CompilePattern("passes")}})
		require.NoError(t, err)
		assert.Equal(t, []string{"PRIYA DESAI"}, names(found))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemory() })
}

func TestMemoryStore_FindReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.ReplaceAll(ctx, sampleRecords()))

	found, err := s.Find(ctx, Query{Limit: 1})
	require.NoError(t, err)
	found[0].Subjects[0].Grade = "Z"
	*found[0].CGPA = 1

	again, err := s.Find(ctx, Query{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, "A", again[0].Subjects[0].Grade)
	assert.Equal(t, 7.5, *again[0].CGPA)
}

func TestCompilePattern(t *testing.T) {
	assert.Nil(t, CompilePattern("  "))

	re := CompilePattern("rahul")
	require.NotNil(t, re)
	assert.True(t, re.MatchString("RAHUL SHARMA"))

	// An invalid expression falls back to a literal match.
	re = CompilePattern("C++ (")
	require.NotNil(t, re)
	assert.True(t, re.MatchString("intro to c++ (lab)"))
	assert.False(t, re.MatchString("c"))
}

func TestFilterMatches(t *testing.T) {
	r := sampleRecords()[0]
	assert.True(t, Filter{}.Matches(r))
	assert.True(t, Filter{Grade: "B"}.Matches(r))
	assert.False(t, Filter{Subject: CompilePattern("physics"), Grade: "B"}.Matches(r))
	assert.True(t, Filter{Subject: CompilePattern("SHM-134")}.Matches(r))
	assert.False(t, Filter{Name: CompilePattern("priya")}.Matches(r))
}
