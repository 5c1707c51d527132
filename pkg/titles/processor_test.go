package titles_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/parley/pkg/backend"
	"github.com/odvcencio/parley/pkg/backendtest"
	"github.com/odvcencio/parley/pkg/bus"
	"github.com/odvcencio/parley/pkg/config"
	perrors "github.com/odvcencio/parley/pkg/errors"
	"github.com/odvcencio/parley/pkg/sched"
	"github.com/odvcencio/parley/pkg/titles"
)

func testConfig() config.TitlesConfig {
	cfg := config.DefaultConfig().Titles
	cfg.BatchSize = 3
	cfg.BatchDelay = 500 * time.Millisecond
	return cfg
}

// runWithFakeClock drives Run to completion, advancing the fake clock
// whenever the processor parks between batches.
func runWithFakeClock(t *testing.T, p *titles.Processor, clock *sched.Fake) (*titles.Report, error) {
	t.Helper()

	type result struct {
		report *titles.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		rep, err := p.Run(context.Background())
		done <- result{rep, err}
	}()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case res := <-done:
			return res.report, res.err
		case <-deadline:
			t.Fatal("processor run never finished")
		case <-time.After(time.Millisecond):
			if len(clock.PendingDeadlines()) > 0 {
				clock.Advance(500 * time.Millisecond)
			}
		}
	}
}

func TestRunBatchesAllConversations(t *testing.T) {
	srv := backendtest.NewServer()
	defer srv.Close()
	ids := []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7"}
	for _, id := range ids {
		srv.Add(id, "New Conversation")
	}
	srv.TitleFor = func(id string) string { return "Title for " + id }

	clock := sched.NewFake()
	client := backend.NewClient(srv.URL(), backend.NamespaceNormal)
	p := titles.NewProcessor(client, nil, clock, nil, testConfig())

	report, err := runWithFakeClock(t, p, clock)
	require.NoError(t, err)

	assert.Equal(t, 7, report.Total)
	assert.Equal(t, 7, report.Successful)
	require.Len(t, report.Results, 7)
	for i, r := range report.Results {
		assert.Equal(t, ids[i], r.ConversationID)
		assert.True(t, r.OK)
		assert.Equal(t, "Title for "+ids[i], r.Title)
	}
	assert.Equal(t, 7, srv.CountRequests("generate-title"))
}

func TestRunPartialFailure(t *testing.T) {
	srv := backendtest.NewServer()
	defer srv.Close()
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		srv.Add(id, "New Conversation")
	}
	// One failure in the first batch must not reduce later attempts.
	srv.FailGenerate["c2"] = true

	clock := sched.NewFake()
	client := backend.NewClient(srv.URL(), backend.NamespaceNormal)
	p := titles.NewProcessor(client, nil, clock, nil, testConfig())

	report, err := runWithFakeClock(t, p, clock)
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrCodePartialBatch))

	require.NotNil(t, report, "the report is complete even on partial failure")
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 4, report.Successful)
	assert.False(t, report.Results[1].OK)
	assert.NotEmpty(t, report.Results[1].Error)
	assert.True(t, report.Results[4].OK, "items after the failure still ran")
	assert.Equal(t, 5, srv.CountRequests("generate-title"))
}

func TestRunEmptyList(t *testing.T) {
	srv := backendtest.NewServer()
	defer srv.Close()

	client := backend.NewClient(srv.URL(), backend.NamespaceNormal)
	p := titles.NewProcessor(client, nil, sched.NewFake(), nil, testConfig())

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Total)
}

func TestRunListFailure(t *testing.T) {
	srv := backendtest.NewServer()
	defer srv.Close()
	srv.FailList = true

	client := backend.NewClient(srv.URL(), backend.NamespaceNormal)
	p := titles.NewProcessor(client, nil, sched.NewFake(), nil, testConfig())

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrCodeNetworkFailure))
}

func TestRunBroadcastsCompletion(t *testing.T) {
	srv := backendtest.NewServer()
	defer srv.Close()
	srv.Add("c1", "New Conversation")
	srv.Add("c2", "New Conversation")

	b := bus.NewMemoryBus()
	defer b.Close()

	events := make(chan *bus.Message, 1)
	_, err := b.Subscribe(context.Background(), bus.SubjectTitlesRefreshed, func(m *bus.Message) {
		events <- m
	})
	require.NoError(t, err)

	client := backend.NewClient(srv.URL(), backend.NamespaceNormal)
	p := titles.NewProcessor(client, b, sched.NewFake(), nil, testConfig())

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	select {
	case msg := <-events:
		var ev bus.TitlesRefreshedEvent
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		assert.Equal(t, "conversations", ev.Namespace)
		assert.Equal(t, 2, ev.Total)
		assert.Equal(t, 2, ev.Successful)
	case <-time.After(2 * time.Second):
		t.Fatal("no completion broadcast")
	}
}

func TestProcessorRunsOnSettingsEvent(t *testing.T) {
	srv := backendtest.NewServer()
	defer srv.Close()
	srv.Add("c1", "New Conversation")

	b := bus.NewMemoryBus()
	defer b.Close()

	client := backend.NewClient(srv.URL(), backend.NamespaceNormal)
	p := titles.NewProcessor(client, b, sched.Real(), nil, config.TitlesConfig{BatchSize: 3, BatchDelay: time.Millisecond})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	refreshed := make(chan *bus.Message, 1)
	_, err := b.Subscribe(context.Background(), bus.SubjectTitlesRefreshed, func(m *bus.Message) {
		refreshed <- m
	})
	require.NoError(t, err)

	require.NoError(t, bus.PublishJSON(context.Background(), b, bus.SubjectSettingsSaved,
		bus.SettingsSavedEvent{ModelChanged: true, TriggerRefresh: true}))

	select {
	case <-refreshed:
	case <-time.After(5 * time.Second):
		t.Fatal("settings event did not trigger a run")
	}
	assert.Equal(t, 1, srv.CountRequests("generate-title"))

	// Events that do not affect title generation are ignored.
	require.NoError(t, bus.PublishJSON(context.Background(), b, bus.SubjectSettingsSaved,
		bus.SettingsSavedEvent{TriggerRefresh: false}))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, srv.CountRequests("generate-title"))
}
