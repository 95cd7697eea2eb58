package cimodel

import (
	"context"
	"errors"
	"testing"
)

func TestNewFactoryValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{Gateway: newFakeGateway(), Registry: NewRegistry()}, false},
		{"valid with namespace", Config{Gateway: newFakeGateway(), Registry: NewRegistry(), Namespace: "billing.core"}, false},
		{"missing gateway", Config{Registry: NewRegistry()}, true},
		{"missing registry", Config{Gateway: newFakeGateway()}, true},
		{"leading separator", Config{Gateway: newFakeGateway(), Registry: NewRegistry(), Namespace: ".billing"}, true},
		{"trailing separator", Config{Gateway: newFakeGateway(), Registry: NewRegistry(), Namespace: "billing."}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFactory(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFactory() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if !tt.wantErr && f == nil {
				t.Error("expected factory")
			}
		})
	}
}

func TestFactoryDefaults(t *testing.T) {
	f := newTestFactory(t, newFakeGateway())

	if _, ok := f.Cache().(NoOpCache); !ok {
		t.Errorf("default cache = %T, want NoOpCache", f.Cache())
	}
	if _, ok := f.Logger().(*NoOpLogger); !ok {
		t.Errorf("default logger = %T, want *NoOpLogger", f.Logger())
	}
	if _, ok := f.Metrics().(*NoOpMetrics); !ok {
		t.Errorf("default metrics = %T, want *NoOpMetrics", f.Metrics())
	}
	if _, ok := f.Equality().(StrictEquality); !ok {
		t.Errorf("default equality = %T, want StrictEquality", f.Equality())
	}
	if f.Namespace() != "app" || f.Registry() == nil || f.Gateway() == nil {
		t.Error("configured collaborators should be exposed")
	}
}

func TestFactoryTypeResolution(t *testing.T) {
	f := newTestFactory(t, newFakeGateway())

	tests := []struct {
		name      string
		typeName  string
		qualified string
		wantErr   bool
	}{
		{"short name gets namespace", "UserAccount", "app.UserAccount", false},
		{"qualified name used as is", "app.UserAccount", "app.UserAccount", false},
		{"unknown short name", "Invoice", "", true},
		{"other namespace", "billing.UserAccount", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := f.Record(tt.typeName)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownType) || !IsUnknownType(err) {
					t.Fatalf("expected ErrUnknownType, got %v", err)
				}
				if !IsPermanent(err) {
					t.Error("unknown type should be permanent")
				}
				return
			}
			if err != nil {
				t.Fatalf("Record() failed: %v", err)
			}
			if r.TypeName() != tt.qualified {
				t.Errorf("TypeName() = %q, want %q", r.TypeName(), tt.qualified)
			}
		})
	}
}

func TestFactoryWithoutNamespace(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister("UserAccount", Definition{})
	f, err := NewFactory(Config{Gateway: newFakeGateway(), Registry: registry})
	if err != nil {
		t.Fatal(err)
	}

	r, err := f.Record("UserAccount")
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if r.Table() != "user_account" {
		t.Errorf("Table() = %q, want user_account", r.Table())
	}
	if f.Qualify("UserAccount") != "UserAccount" {
		t.Error("names should stay unqualified without a namespace")
	}
}

func TestFactoryRecordWithData(t *testing.T) {
	f := newTestFactory(t, newFakeGateway())
	data := Row{"id": 3, "name": "alice"}

	r, err := f.RecordWithData("UserAccount", data)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Exists() || r.IsModified() {
		t.Error("hydrated record should exist and be clean")
	}

	data["name"] = "mutated"
	if r.Get("name") != "alice" {
		t.Error("record must not alias the caller's row")
	}

	if _, err := f.RecordWithData("Nope", data); !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}

func TestFactoryRecordWithNilData(t *testing.T) {
	f := newTestFactory(t, newFakeGateway())

	r, err := f.RecordWithData("UserAccount", nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Exists() || r.IsModified() {
		t.Error("a nil row should give a new, clean record")
	}
	if len(r.Fields()) != 0 {
		t.Errorf("Fields() = %v, want none", r.Fields())
	}
}

func TestFactoryRecordByIDPropagatesGatewayErrors(t *testing.T) {
	gw := newFakeGateway()
	gw.getErr = errors.New("connection refused")
	f := newTestFactory(t, gw)

	if _, err := f.RecordByID(context.Background(), "UserAccount", 1); !errors.Is(err, gw.getErr) {
		t.Errorf("expected gateway error, got %v", err)
	}
	if _, err := f.RecordByID(context.Background(), "Nope", 1); !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}

func TestFactoryInitHook(t *testing.T) {
	registry := NewRegistry()
	var seen []string
	registry.MustRegister("app.Order", Definition{
		Init: func(r *Record) {
			seen = append(seen, r.TypeName())
			r.Set("status", "new")
		},
	})
	f, err := NewFactory(Config{Gateway: newFakeGateway(), Registry: registry, Namespace: "app"})
	if err != nil {
		t.Fatal(err)
	}

	fresh, _ := f.Record("Order")
	if fresh.Get("status") != "new" {
		t.Error("Init should run on new records")
	}

	loaded, _ := f.RecordWithData("Order", Row{"id": 1, "status": "shipped"})
	if loaded.Get("status") != "shipped" || loaded.IsModified() {
		t.Error("row data should be applied after Init")
	}

	if len(seen) != 2 || seen[0] != "app.Order" {
		t.Errorf("Init calls = %v", seen)
	}
}

func TestFactoryRecordsAreIndependent(t *testing.T) {
	f := newTestFactory(t, newFakeGateway())
	a := mustRecord(t, f, "UserAccount")
	b := mustRecord(t, f, "UserAccount")

	a.Set("name", "alice")
	if b.Has("name") || b.IsModified() {
		t.Error("records from one factory must not share state")
	}
	if a.Factory() != b.Factory() {
		t.Error("records should share the factory")
	}
}
