package shadowlog_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/shadowlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_RingBufferOverwritesOldest(t *testing.T) {
	l := shadowlog.New(3)
	for i := 0; i < 5; i++ {
		l.Record(shadowlog.Entry{UOWID: fmt.Sprintf("u-%d", i), Kind: shadowlog.KindEvaluation})
	}

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "u-2", entries[0].UOWID)
	assert.Equal(t, "u-4", entries[2].UOWID)
	assert.Equal(t, uint64(5), entries[2].Seq)
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, uint64(2), l.Dropped())
}

func TestLog_QueryFilters(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	l := shadowlog.New(10, shadowlog.WithClock(func() time.Time { return now }))

	l.Record(shadowlog.Entry{UOWID: "a", Policy: "p1", Expression: "x > 1", Kind: shadowlog.KindEvaluation})
	now = base.Add(time.Minute)
	l.Record(shadowlog.Entry{UOWID: "b", Policy: "p1", Expression: "y >", Kind: shadowlog.KindSyntax})
	now = base.Add(2 * time.Minute)
	l.Record(shadowlog.Entry{UOWID: "a", Policy: "p2", Kind: shadowlog.KindPolicyExhausted})

	assert.Len(t, l.Query(shadowlog.Filter{UOWID: "a"}), 2)
	assert.Len(t, l.Query(shadowlog.Filter{Kind: shadowlog.KindSyntax}), 1)
	assert.Len(t, l.Query(shadowlog.Filter{Expression: "x > 1"}), 1)
	assert.Len(t, l.Query(shadowlog.Filter{Policy: "p1"}), 2)
	assert.Len(t, l.Query(shadowlog.Filter{Since: base.Add(30 * time.Second)}), 2)

	limited := l.Query(shadowlog.Filter{Limit: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, shadowlog.KindPolicyExhausted, limited[0].Kind)
}

func TestLog_ContextIsSnapshotted(t *testing.T) {
	l := shadowlog.New(4)
	ctx := map[string]any{"amount": 1}
	l.Record(shadowlog.Entry{UOWID: "a", Context: ctx})
	ctx["amount"] = 2

	got := l.Entries()[0]
	assert.Equal(t, 1, got.Context["amount"])

	got.Context["amount"] = 3
	assert.Equal(t, 1, l.Entries()[0].Context["amount"])
}

func TestLog_ObserverAndClear(t *testing.T) {
	var seen []shadowlog.Entry
	l := shadowlog.New(2, shadowlog.WithObserver(func(e shadowlog.Entry) { seen = append(seen, e) }))
	l.Record(shadowlog.Entry{UOWID: "a"})
	l.Record(shadowlog.Entry{UOWID: "b"})
	assert.Len(t, seen, 2)

	l.Clear()
	assert.Equal(t, 0, l.Len())
	e := l.Record(shadowlog.Entry{UOWID: "c"})
	assert.Equal(t, uint64(3), e.Seq)
}

func TestLog_ConcurrentRecord(t *testing.T) {
	l := shadowlog.New(50)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.Record(shadowlog.Entry{UOWID: "x"})
				_ = l.Entries()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, l.Len())
	assert.Equal(t, uint64(150), l.Dropped())
}
