package activity

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/labflow/labflow/internal/platform/clock"
	"github.com/labflow/labflow/internal/platform/metrics"
)

type memRepo struct {
	mu    sync.Mutex
	items []*Activity
}

func (m *memRepo) Create(_ context.Context, a *Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, a)
	return nil
}

func (m *memRepo) ListByLab(_ context.Context, labID uuid.UUID, limit, offset int) ([]*Activity, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Activity
	for _, a := range m.items {
		if a.LabID == labID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AddedAt.After(out[j].AddedAt) })
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

type recordingPublisher struct {
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ interface{}) error {
	p.keys = append(p.keys, key)
	return p.err
}

func (p *recordingPublisher) Close() {}

func TestRecord(t *testing.T) {
	repo := &memRepo{}
	clk := &clock.Fixed{T: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	log := NewLog(repo, nil, clk, nil, zerolog.Nop())
	lab := uuid.New()

	a, err := log.Record(context.Background(), lab, "tech-1", MsgReceiveRecord, "CBC")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if a.ID == uuid.Nil || !a.AddedAt.Equal(clk.T) || a.Message != MsgReceiveRecord {
		t.Errorf("unexpected activity %+v", a)
	}
	if len(repo.items) != 1 {
		t.Errorf("expected 1 stored activity, got %d", len(repo.items))
	}
}

func TestPublish_KeyedByLab(t *testing.T) {
	pub := &recordingPublisher{}
	log := NewLog(&memRepo{}, pub, clock.Bangkok(), nil, zerolog.Nop())
	lab := uuid.New()
	a, _ := log.Record(context.Background(), lab, "u", MsgAddOrder, "250300001")

	log.Publish(context.Background(), a, nil)
	if len(pub.keys) != 1 || pub.keys[0] != lab.String() {
		t.Errorf("expected one publish keyed by lab, got %v", pub.keys)
	}
}

func TestPublish_FailureIsLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	m := metrics.New(prometheus.NewRegistry())
	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	log := NewLog(&memRepo{}, pub, clock.Bangkok(), m, zerolog.New(&buf))
	a, _ := log.Record(context.Background(), uuid.New(), "u", MsgCancelOrder, "250300001")

	log.Publish(context.Background(), a)

	if got := testutil.ToFloat64(m.PublishFailures); got != 1 {
		t.Errorf("expected 1 publish failure, got %v", got)
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) || !strings.Contains(buf.String(), "broker unavailable") {
		t.Errorf("expected a warning log, got %s", buf.String())
	}
}

func TestHandler_List(t *testing.T) {
	repo := &memRepo{}
	clk := &clock.Fixed{T: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	log := NewLog(repo, nil, clk, nil, zerolog.Nop())
	lab := uuid.New()
	for i := 0; i < 3; i++ {
		log.Record(context.Background(), lab, "u", MsgAddOrder, "")
		clk.Advance(time.Minute)
	}
	log.Record(context.Background(), uuid.New(), "u", MsgAddOrder, "other lab")

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=2", nil), rec)
	c.SetParamNames("lab_id")
	c.SetParamValues(lab.String())

	if err := NewHandler(log).List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"total":3`) || !strings.Contains(body, `"has_more":true`) {
		t.Errorf("unexpected body %s", body)
	}
}
