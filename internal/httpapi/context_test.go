package httpapi

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"
)

func TestJoinContexts_CancelsWhenEitherDone(t *testing.T) {
	a, ac := context.WithCancel(context.Background())
	b, bc := context.WithCancel(context.Background())
	defer bc()
	j, cancelJ := joinContexts(a, b)
	defer cancelJ()
	ac()
	select {
	case <-j.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("joined context did not cancel when first parent canceled")
	}
}

func TestHandlerContext_BaseCancelPropagates(t *testing.T) {
	base, cancelBase := context.WithCancel(context.Background())
	SetBaseContext(base)
	defer SetBaseContext(nil)

	ctx, cancel := handlerContext(httptest.NewRequest("GET", "/", nil))
	defer cancel()
	cancelBase()
	select {
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("handler context survived server shutdown")
	}
}

func TestHandlerContext_AppliesTimeout(t *testing.T) {
	SetRequestTimeoutSeconds(1)
	defer SetRequestTimeoutSeconds(0)
	ctx, cancel := handlerContext(httptest.NewRequest("GET", "/", nil))
	defer cancel()
	dl, ok := ctx.Deadline()
	if !ok || time.Until(dl) > time.Second {
		t.Fatalf("deadline=%v ok=%v", dl, ok)
	}
}
