package hooks

import (
	"errors"
	"testing"
)

func TestFirstNonNilStopsAtFirstAnswer(t *testing.T) {
	r := NewRegistry()
	var calls []string
	r.Register(Authenticate, func(args ...interface{}) (interface{}, error) {
		calls = append(calls, "first")
		return nil, nil
	})
	r.Register(Authenticate, func(args ...interface{}) (interface{}, error) {
		calls = append(calls, "second")
		return "answer", nil
	})
	r.Register(Authenticate, func(args ...interface{}) (interface{}, error) {
		calls = append(calls, "third")
		return "ignored", nil
	})

	res, err := r.FirstNonNil(Authenticate)
	if err != nil {
		t.Fatalf("FirstNonNil: %v", err)
	}
	if res != "answer" {
		t.Errorf("result = %v, want answer", res)
	}
	if len(calls) != 2 {
		t.Errorf("calls = %v, chain must stop at the first answer", calls)
	}
}

func TestFirstNonNilPropagatesError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	r.Register(Authenticate, func(args ...interface{}) (interface{}, error) {
		return nil, boom
	})
	r.Register(Authenticate, func(args ...interface{}) (interface{}, error) {
		t.Fatal("chain must abort on error")
		return nil, nil
	})

	if _, err := r.FirstNonNil(Authenticate); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestCollectGathersNonNilResults(t *testing.T) {
	r := NewRegistry()
	r.Register(GatherRegistrationValidators, func(args ...interface{}) (interface{}, error) {
		return "a", nil
	})
	r.Register(GatherRegistrationValidators, func(args ...interface{}) (interface{}, error) {
		return nil, nil
	})
	r.Register(GatherRegistrationValidators, func(args ...interface{}) (interface{}, error) {
		return "b", nil
	})

	results, err := r.Collect(GatherRegistrationValidators)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(results) != 2 || results[0] != "a" || results[1] != "b" {
		t.Errorf("results = %v, want [a b] in registration order", results)
	}
}

func TestNotifyRunsWholeChain(t *testing.T) {
	r := NewRegistry()
	count := 0
	for i := 0; i < 3; i++ {
		r.Register(SettingsUpdated, func(args ...interface{}) (interface{}, error) {
			count++
			return nil, nil
		})
	}
	if err := r.Notify(SettingsUpdated); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestDispatchOnUnknownHookIsEmpty(t *testing.T) {
	r := NewRegistry()
	res, err := r.FirstNonNil("never_registered")
	if err != nil || res != nil {
		t.Errorf("unknown hook = (%v, %v), want (nil, nil)", res, err)
	}
	if err := r.Notify("never_registered"); err != nil {
		t.Errorf("Notify unknown hook: %v", err)
	}
}

func TestArgumentsReachCallbacks(t *testing.T) {
	r := NewRegistry()
	r.Register(PostAuthenticate, func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 || args[0] != "x" || args[1] != 7 {
			t.Errorf("args = %v, want [x 7]", args)
		}
		return nil, nil
	})
	if err := r.Notify(PostAuthenticate, "x", 7); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}
