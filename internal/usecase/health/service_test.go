package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockChecker struct {
	err error
}

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

func embedding(err error) Component {
	return Component{Name: "embedding", Checker: &mockChecker{err: err}}
}

func reranker(err error) Component {
	return Component{Name: "reranker", Checker: CheckFunc(func(context.Context) error { return err })}
}

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockDBPinger{}, 0, nil, embedding(nil), reranker(nil))
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	for _, name := range []string{"database", "embedding", "reranker"} {
		if r.Checks[name] != CheckOK {
			t.Errorf("expected %s %q, got %q", name, CheckOK, r.Checks[name])
		}
	}
}

func TestCheck_DBErrorIsUnhealthy(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("conn refused")}, 0, nil, embedding(nil))
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["database"] != CheckError {
		t.Errorf("expected database %q, got %q", CheckError, r.Checks["database"])
	}
	if r.Checks["embedding"] != CheckOK {
		t.Errorf("expected embedding %q, got %q", CheckOK, r.Checks["embedding"])
	}
}

func TestCheck_EmbeddingErrorIsDegraded(t *testing.T) {
	svc := New(&mockDBPinger{}, 0, nil, embedding(errors.New("timeout")))
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["embedding"] != CheckError {
		t.Errorf("expected embedding %q, got %q", CheckError, r.Checks["embedding"])
	}
}

func TestCheck_BothFail(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("db down")}, 0, nil,
		embedding(errors.New("emb down")), reranker(errors.New("rerank down")))
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["embedding"] != CheckError || r.Checks["reranker"] != CheckError {
		t.Errorf("expected component errors, got %v", r.Checks)
	}
}

func TestCheck_NilCheckerSkipped(t *testing.T) {
	svc := New(&mockDBPinger{}, 0, nil, Component{Name: "embedding"})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if _, ok := r.Checks["embedding"]; ok {
		t.Error("embedding check should be absent without a checker")
	}
}

func TestCheck_Timeout(t *testing.T) {
	slow := CheckFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	svc := New(&mockDBPinger{}, 10*time.Millisecond, nil, Component{Name: "reranker", Checker: slow})

	start := time.Now()
	r := svc.Check(context.Background())
	if time.Since(start) > time.Second {
		t.Fatal("check must be bounded by the timeout")
	}
	if r.Status != Degraded || r.Checks["reranker"] != CheckError {
		t.Errorf("expected degraded with reranker error, got %+v", r)
	}
}
