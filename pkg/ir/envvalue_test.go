package ir

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestEnvValueSetAndGet(t *testing.T) {
	var ev EnvValue
	ev.Set(int64(4), EnvSharedFilesystem)

	if v := ev.Get(EnvSharedFilesystem); v != int64(4) {
		t.Fatalf("expected 4, got %v", v)
	}
	if v := ev.Get(EnvDistributedComputing); v != nil {
		t.Fatalf("unknown environment should resolve to nil, got %v", v)
	}
}

func TestEnvValueSetIdempotent(t *testing.T) {
	var ev EnvValue
	ev.Set("x", EnvLocal)
	ev.Set("x", EnvLocal)
	if len(ev.Values) != 1 {
		t.Fatalf("expected 1 binding after idempotent set, got %d", len(ev.Values))
	}
}

func TestEnvValueUpsertReplacesValue(t *testing.T) {
	var ev EnvValue
	ev.Set(int64(2), EnvSharedFilesystem)
	ev.Set(int64(8), EnvSharedFilesystem)
	if v := ev.Get(EnvSharedFilesystem); v != int64(8) {
		t.Fatalf("expected most recently set value 8, got %v", v)
	}
	if len(ev.Values) != 1 {
		t.Fatalf("upsert should not grow the binding list, got %d bindings", len(ev.Values))
	}
}

func TestEnvValueAdaptAppendsOnly(t *testing.T) {
	var ev EnvValue
	ev.Set(int64(4096), EnvSharedFilesystem)
	before := len(ev.Values)

	ev.SetWithMethod(int64(7372), EnvDistributedComputing, SourceAdapted, 0.8)

	if len(ev.Values) != before+1 {
		t.Fatalf("adaptation must append a binding, got %d bindings", len(ev.Values))
	}
	if v := ev.Get(EnvSharedFilesystem); v != int64(4096) {
		t.Fatalf("source binding must be preserved, got %v", v)
	}
	b := ev.Binding(EnvDistributedComputing)
	if b == nil || b.SourceMethod != SourceAdapted {
		t.Fatalf("expected adapted binding for distributed_computing, got %+v", b)
	}
}

func TestEnvValueAllEnvironments(t *testing.T) {
	var ev EnvValue
	ev.Set("a", EnvLocal)
	ev.Set("b", EnvEdge)
	ev.Set("c", EnvCloudNative)
	got := ev.AllEnvironments()
	want := []string{EnvCloudNative, EnvEdge, EnvLocal}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestEnvValueGetWithDefault(t *testing.T) {
	var ev EnvValue
	if v := ev.GetWithDefault(EnvLocal, int64(7)); v != int64(7) {
		t.Fatalf("expected default 7, got %v", v)
	}
	ev.Set(int64(3), EnvLocal)
	if v := ev.GetWithDefault(EnvLocal, int64(7)); v != int64(3) {
		t.Fatalf("expected stored 3, got %v", v)
	}
}

func TestEnvValueJSONRoundTrip(t *testing.T) {
	var ev EnvValue
	ev.SetWithMethod(int64(4), EnvSharedFilesystem, SourceExplicit, 1.0)
	ev.SetWithMethod("staging", EnvDistributedComputing, SourceAdapted, 0.8)

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	var decoded EnvValue
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ev, decoded) {
		t.Fatalf("round trip mismatch:\n  in:  %+v\n  out: %+v", ev, decoded)
	}
}

func TestEnvValueEmptyEncodesAsEmptyArray(t *testing.T) {
	var ev EnvValue
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"values":[]}` {
		t.Fatalf("expected {\"values\":[]}, got %s", data)
	}
}

func TestEnvValueTolerantDecode(t *testing.T) {
	var ev EnvValue
	if err := json.Unmarshal([]byte(`{"values":"not-a-list"}`), &ev); err != nil {
		t.Fatalf("malformed sub-document must not error, got %v", err)
	}
	if !ev.IsEmpty() {
		t.Fatalf("malformed sub-document must decode to empty, got %+v", ev)
	}
}

func TestNormalizeValueCollapsesNumbers(t *testing.T) {
	if v := normalizeValue(float64(4)); v != int64(4) {
		t.Fatalf("integral float should normalize to int64, got %T %v", v, v)
	}
	if v := normalizeValue(3.5); v != 3.5 {
		t.Fatalf("fractional float should stay float64, got %v", v)
	}
}

func TestEnvValueTypedGetters(t *testing.T) {
	var ev EnvValue
	ev.Set(int64(2), EnvLocal)
	if n, ok := ev.GetInt(EnvLocal); !ok || n != 2 {
		t.Fatalf("GetInt = %d, %v", n, ok)
	}
	ev.Set(true, EnvEdge)
	if b, ok := ev.GetBool(EnvEdge); !ok || !b {
		t.Fatalf("GetBool = %v, %v", b, ok)
	}
	ev.Set("img", EnvHybrid)
	if s := ev.GetString(EnvHybrid); s != "img" {
		t.Fatalf("GetString = %q", s)
	}
}
