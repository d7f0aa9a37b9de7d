package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edinburgh-finds/backend/internal/discovery"
	"github.com/edinburgh-finds/backend/internal/record"
	"github.com/edinburgh-finds/backend/internal/storage/models"
	"github.com/edinburgh-finds/backend/internal/upsert"
)

type fakeDiscoverer struct {
	sources []discovery.Source
	err     error
}

func (f *fakeDiscoverer) Discover(_ context.Context, _, _ string, _ int) ([]discovery.Source, error) {
	return f.sources, f.err
}

type fakeExtractor struct {
	candidates map[string]*record.Candidate
	errs       map[string]error
}

func (f *fakeExtractor) ExtractFacts(_ context.Context, _, _, sourceURL, _ string) (*record.Candidate, error) {
	if err, ok := f.errs[sourceURL]; ok {
		return nil, err
	}
	return f.candidates[sourceURL], nil
}

type fakeUpserter struct {
	reports map[string]*upsert.ChangeReport
	calls   int
}

func (f *fakeUpserter) Upsert(_ context.Context, cand *record.Candidate, _, _ string) (*models.Listing, *models.Venue, *upsert.ChangeReport, error) {
	f.calls++
	url := cand.SourceInfo["sources"].([]any)[0].(string)
	return &models.Listing{ListingID: "VEN-test"}, &models.Venue{ListingID: "VEN-test"}, f.reports[url], nil
}

type fakeInvalidator struct {
	invalidated []string
}

func (f *fakeInvalidator) InvalidateListing(_ context.Context, listingID string) error {
	f.invalidated = append(f.invalidated, listingID)
	return nil
}

func candidateFor(url string) *record.Candidate {
	return &record.Candidate{
		Fields:     record.Fields{"city": "Edinburgh"},
		Confidence: record.Confidence{"city": 0.9},
		SourceInfo: map[string]any{"sources": []any{url}},
	}
}

func TestRun_MergesEverySourceAndAggregatesChanges(t *testing.T) {
	disc := &fakeDiscoverer{sources: []discovery.Source{
		{URL: "https://a.example", Content: "page a"},
		{URL: "https://b.example", Content: "page b"},
	}}
	ext := &fakeExtractor{candidates: map[string]*record.Candidate{
		"https://a.example": candidateFor("https://a.example"),
		"https://b.example": candidateFor("https://b.example"),
	}}
	ups := &fakeUpserter{reports: map[string]*upsert.ChangeReport{
		"https://a.example": {ListingChanges: []string{"city", "phone"}, EntityChanges: []string{"padel_total_courts"}},
		"https://b.example": {ListingChanges: []string{"city", "website_url"}, EntityChanges: []string{}},
	}}
	cache := &fakeInvalidator{}

	runner := NewRunner(disc, ext, ups, cache, 5)
	report, err := runner.Run(context.Background(), "Thistle Padel Club", "venue", nil)

	require.NoError(t, err)
	require.Equal(t, 2, ups.calls)
	require.Equal(t, "VEN-test", report.ListingID)
	require.Len(t, report.Sources, 2)
	require.Equal(t, "merged", report.Sources[0].Status)
	require.Equal(t, []string{"city", "phone", "website_url"}, report.ListingChanges)
	require.Equal(t, []string{"padel_total_courts"}, report.EntityChanges)
	require.Equal(t, []string{"VEN-test", "VEN-test"}, cache.invalidated)
}

func TestRun_BadSourceSkippedOthersSurvive(t *testing.T) {
	disc := &fakeDiscoverer{sources: []discovery.Source{
		{URL: "https://bad.example", Content: "garbage"},
		{URL: "https://good.example", Content: "page"},
	}}
	ext := &fakeExtractor{
		candidates: map[string]*record.Candidate{
			"https://good.example": candidateFor("https://good.example"),
		},
		errs: map[string]error{
			"https://bad.example": errors.New("response is not a JSON object"),
		},
	}
	ups := &fakeUpserter{reports: map[string]*upsert.ChangeReport{
		"https://good.example": {ListingChanges: []string{"city"}, EntityChanges: []string{}},
	}}

	runner := NewRunner(disc, ext, ups, nil, 5)
	report, err := runner.Run(context.Background(), "Thistle Padel Club", "venue", nil)

	require.NoError(t, err)
	require.Equal(t, 1, ups.calls)
	require.Equal(t, "extraction_failed", report.Sources[0].Status)
	require.Equal(t, "merged", report.Sources[1].Status)
	require.Equal(t, []string{"city"}, report.ListingChanges)
}

func TestRun_EmptyContentSkippedWithoutExtraction(t *testing.T) {
	disc := &fakeDiscoverer{sources: []discovery.Source{
		{URL: "https://empty.example", Content: ""},
		{URL: "https://good.example", Content: "page"},
	}}
	ext := &fakeExtractor{candidates: map[string]*record.Candidate{
		"https://good.example": candidateFor("https://good.example"),
	}}
	ups := &fakeUpserter{reports: map[string]*upsert.ChangeReport{
		"https://good.example": {ListingChanges: []string{}, EntityChanges: []string{}},
	}}

	runner := NewRunner(disc, ext, ups, nil, 5)
	report, err := runner.Run(context.Background(), "Thistle Padel Club", "venue", nil)

	require.NoError(t, err)
	require.Equal(t, "skipped", report.Sources[0].Status)
	require.Equal(t, "merged", report.Sources[1].Status)
}

func TestRun_AllSourcesFailedIsAnError(t *testing.T) {
	disc := &fakeDiscoverer{sources: []discovery.Source{
		{URL: "https://bad.example", Content: "garbage"},
	}}
	ext := &fakeExtractor{errs: map[string]error{
		"https://bad.example": errors.New("boom"),
	}}

	runner := NewRunner(disc, ext, &fakeUpserter{}, nil, 5)
	report, err := runner.Run(context.Background(), "Thistle Padel Club", "venue", nil)

	require.Error(t, err)
	require.NotNil(t, report)
	require.Equal(t, "extraction_failed", report.Sources[0].Status)
}

func TestRun_DiscoveryFailureAborts(t *testing.T) {
	disc := &fakeDiscoverer{err: errors.New("search unavailable")}

	runner := NewRunner(disc, &fakeExtractor{}, &fakeUpserter{}, nil, 5)
	_, err := runner.Run(context.Background(), "Thistle Padel Club", "venue", nil)

	require.Error(t, err)
}

func TestRun_MaxURLsCapsSources(t *testing.T) {
	disc := &fakeDiscoverer{sources: []discovery.Source{
		{URL: "https://a.example", Content: "a"},
		{URL: "https://b.example", Content: "b"},
		{URL: "https://c.example", Content: "c"},
	}}
	ext := &fakeExtractor{candidates: map[string]*record.Candidate{
		"https://a.example": candidateFor("https://a.example"),
		"https://b.example": candidateFor("https://b.example"),
	}}
	ups := &fakeUpserter{reports: map[string]*upsert.ChangeReport{
		"https://a.example": {ListingChanges: []string{}, EntityChanges: []string{}},
		"https://b.example": {ListingChanges: []string{}, EntityChanges: []string{}},
	}}

	runner := NewRunner(disc, ext, ups, nil, 2)
	report, err := runner.Run(context.Background(), "Thistle Padel Club", "venue", nil)

	require.NoError(t, err)
	require.Len(t, report.Sources, 2)
}

func TestRun_ProgressStagesReported(t *testing.T) {
	disc := &fakeDiscoverer{sources: []discovery.Source{
		{URL: "https://a.example", Content: "a"},
	}}
	ext := &fakeExtractor{candidates: map[string]*record.Candidate{
		"https://a.example": candidateFor("https://a.example"),
	}}
	ups := &fakeUpserter{reports: map[string]*upsert.ChangeReport{
		"https://a.example": {ListingChanges: []string{}, EntityChanges: []string{}},
	}}

	var stages []string
	runner := NewRunner(disc, ext, ups, nil, 5)
	_, err := runner.Run(context.Background(), "Thistle Padel Club", "venue", func(stage, _ string) {
		stages = append(stages, stage)
	})

	require.NoError(t, err)
	require.Equal(t, []string{"discovering", "extracting", "merging", "done"}, stages)
}
