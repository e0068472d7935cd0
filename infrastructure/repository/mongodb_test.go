package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"bux-stream/core/event"
)

func TestDefaultMongoDBConfig(t *testing.T) {
	config := DefaultMongoDBConfig()

	if config == nil {
		t.Fatal("DefaultMongoDBConfig returned nil")
	}

	if config.URI != "mongodb://localhost:27017" {
		t.Errorf("URI = %v, want mongodb://localhost:27017", config.URI)
	}

	if config.Database != "bux" {
		t.Errorf("Database = %v, want bux", config.Database)
	}

	if config.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", config.ConnectTimeout)
	}

	if config.PingTimeout != 5*time.Second {
		t.Errorf("PingTimeout = %v, want 5s", config.PingTimeout)
	}

	if config.AppName != "buxstream" {
		t.Errorf("AppName = %v, want buxstream", config.AppName)
	}
}

func TestClientOptions(t *testing.T) {
	opts := clientOptions(&MongoDBConfig{
		URI:            "mongodb://user:pw@db1:27017,db2:27017/?replicaSet=rs0",
		ConnectTimeout: 3 * time.Second,
		AppName:        "buxstream",
	})

	if err := opts.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if opts.AppName == nil || *opts.AppName != "buxstream" {
		t.Errorf("AppName = %v, want buxstream", opts.AppName)
	}
	if opts.RetryWrites == nil || !*opts.RetryWrites {
		t.Error("RetryWrites should be enabled")
	}
	if opts.WriteConcern == nil || opts.WriteConcern.W != 1 {
		t.Errorf("WriteConcern = %+v, want w:1", opts.WriteConcern)
	}
	if opts.ServerSelectionTimeout == nil || *opts.ServerSelectionTimeout != 3*time.Second {
		t.Errorf("ServerSelectionTimeout = %v, want 3s", opts.ServerSelectionTimeout)
	}
	if strings.Join(opts.Hosts, ",") != "db1:27017,db2:27017" {
		t.Errorf("Hosts = %v", opts.Hosts)
	}
}

func TestNewMongoDB_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *MongoDBConfig
		wantMsg string
	}{
		{"missing database", &MongoDBConfig{URI: "mongodb://localhost:27017"}, "database name"},
		{"invalid uri", &MongoDBConfig{URI: "not-a-uri", Database: "bux"}, "invalid archive URI"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMongoDB(context.Background(), tt.cfg, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("NewMongoDB() error = %v, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestEventDocument_Conversion(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("CET", 3600))
	e := event.NewStreamEvent("conn-1", "portfolio.performance", 42, `{"v":1}`, at)

	doc := eventToDocument(e)

	if doc.ConnectionID != "conn-1" {
		t.Errorf("ConnectionID = %v, want conn-1", doc.ConnectionID)
	}
	if doc.Action != "portfolio.performance" {
		t.Errorf("Action = %v, want portfolio.performance", doc.Action)
	}
	if doc.Index != 42 {
		t.Errorf("Index = %d, want 42", doc.Index)
	}
	if doc.Payload != `{"v":1}` {
		t.Errorf("Payload = %v", doc.Payload)
	}
	if doc.ReceivedAt.Location() != time.UTC || !doc.ReceivedAt.Equal(at) {
		t.Errorf("ReceivedAt = %v, want %v in UTC", doc.ReceivedAt, at)
	}

	back := documentToEvent(doc)
	if back.Index() != 42 || back.Payload() != e.Payload() || back.ConnectionID() != "conn-1" {
		t.Errorf("documentToEvent() = %+v", back)
	}
}

func TestEventDocument_EmptyPayload(t *testing.T) {
	doc := eventToDocument(event.NewStreamEvent("c", "a", 1, "", time.Time{}))
	if doc.Payload != "" {
		t.Errorf("Payload = %q, want empty", doc.Payload)
	}
	if !documentToEvent(doc).IsEmpty() {
		t.Error("round-tripped event should be empty")
	}
}
