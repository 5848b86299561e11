// ABOUTME: HTTP tests for the roastery directory endpoints
// ABOUTME: Public reads, authenticated writes, and FK behavior on user deletion

package web

import (
	"net/http"
	"testing"
)

func TestRoasteriesList_Empty(t *testing.T) {
	srv := newTestServer(t)
	b := srv.browser(t)

	resp := b.get("/api/roasteries")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var list []roasteryResponse
	decodeJSON(t, resp, &list)
	if list == nil {
		t.Error("expected an empty list, got null")
	}
	if len(list) != 0 {
		t.Errorf("roastery count = %d, want 0", len(list))
	}
}

func TestRoasteryCreate(t *testing.T) {
	srv := newTestServer(t)
	b := srv.browser(t)
	b.register("nikhil", "nikhil@example.com")

	resp := b.postJSON("/api/roasteries", map[string]string{
		"name":        "Sightglass",
		"city":        "San Francisco",
		"website":     "https://sightglasscoffee.com",
		"description": "Roastery and cafe on 7th Street",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", resp.StatusCode, readBody(t, resp))
	}

	var created roasteryResponse
	decodeJSON(t, resp, &created)
	if created.ID == "" {
		t.Error("expected an id")
	}
	if created.Name != "Sightglass" {
		t.Errorf("name = %q, want %q", created.Name, "Sightglass")
	}
	if created.City != "San Francisco" {
		t.Errorf("city = %q, want %q", created.City, "San Francisco")
	}
	if created.CreatedBy == "" {
		t.Error("expected created_by to carry the session user")
	}

	var list []roasteryResponse
	decodeJSON(t, b.get("/api/roasteries"), &list)
	if len(list) != 1 {
		t.Errorf("roastery count = %d, want 1", len(list))
	}
}

func TestRoasteryCreate_Validation(t *testing.T) {
	srv := newTestServer(t)
	b := srv.browser(t)
	b.register("nikhil", "nikhil@example.com")

	tests := []struct {
		name string
		body map[string]string
	}{
		{
			name: "missing name",
			body: map[string]string{"city": "Portland"},
		},
		{
			name: "blank name",
			body: map[string]string{"name": "   "},
		},
		{
			name: "bad website scheme",
			body: map[string]string{"name": "Heart", "website": "ftp://heart.example"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := b.postJSON("/api/roasteries", tt.body)
			wantError(t, resp, http.StatusBadRequest, "validation")
		})
	}
}

func TestRoasteryCreate_DuplicateName(t *testing.T) {
	srv := newTestServer(t)
	b := srv.browser(t)
	b.register("nikhil", "nikhil@example.com")

	first := b.postJSON("/api/roasteries", map[string]string{"name": "Heart"})
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first create status = %d", first.StatusCode)
	}
	readBody(t, first)

	second := b.postJSON("/api/roasteries", map[string]string{"name": "Heart"})
	wantError(t, second, http.StatusConflict, "conflict")
}

func TestRoasteryGet(t *testing.T) {
	srv := newTestServer(t)
	b := srv.browser(t)
	b.register("nikhil", "nikhil@example.com")

	var created roasteryResponse
	decodeJSON(t, b.postJSON("/api/roasteries", map[string]string{"name": "Heart", "city": "Portland"}), &created)

	// Reads are public: a fresh anonymous browser can fetch it
	anon := srv.browser(t)
	resp := anon.get("/api/roasteries/" + created.ID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got roasteryResponse
	decodeJSON(t, resp, &got)
	if got.Name != "Heart" || got.City != "Portland" {
		t.Errorf("roastery = %+v, want Heart in Portland", got)
	}
}

func TestRoasteryGet_Unknown(t *testing.T) {
	srv := newTestServer(t)
	b := srv.browser(t)

	resp := b.get("/api/roasteries/no-such-id")
	wantError(t, resp, http.StatusNotFound, "not_found")
}

func TestRoasteryUpdate(t *testing.T) {
	srv := newTestServer(t)
	b := srv.browser(t)
	b.register("nikhil", "nikhil@example.com")

	var created roasteryResponse
	decodeJSON(t, b.postJSON("/api/roasteries", map[string]string{"name": "Heart", "city": "Portland"}), &created)

	resp := b.do(http.MethodPut, "/api/roasteries/"+created.ID, map[string]string{
		"name": "Heart",
		"city": "Portland, OR",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", resp.StatusCode, readBody(t, resp))
	}

	var updated roasteryResponse
	decodeJSON(t, resp, &updated)
	if updated.City != "Portland, OR" {
		t.Errorf("city = %q, want %q", updated.City, "Portland, OR")
	}
	if updated.UpdatedAt.Before(updated.CreatedAt) {
		t.Errorf("updated_at %v is before created_at %v", updated.UpdatedAt, updated.CreatedAt)
	}
	if updated.UpdatedAt.Before(created.UpdatedAt) {
		t.Errorf("updated_at went backwards: %v -> %v", created.UpdatedAt, updated.UpdatedAt)
	}
}

func TestRoasteryUpdate_NameConflict(t *testing.T) {
	srv := newTestServer(t)
	b := srv.browser(t)
	b.register("nikhil", "nikhil@example.com")

	readBody(t, b.postJSON("/api/roasteries", map[string]string{"name": "Heart"}))
	var second roasteryResponse
	decodeJSON(t, b.postJSON("/api/roasteries", map[string]string{"name": "Sightglass"}), &second)

	resp := b.do(http.MethodPut, "/api/roasteries/"+second.ID, map[string]string{"name": "Heart"})
	wantError(t, resp, http.StatusConflict, "conflict")
}

func TestRoasteryUpdate_Unknown(t *testing.T) {
	srv := newTestServer(t)
	b := srv.browser(t)
	b.register("nikhil", "nikhil@example.com")

	resp := b.do(http.MethodPut, "/api/roasteries/no-such-id", map[string]string{"name": "Heart"})
	wantError(t, resp, http.StatusNotFound, "not_found")
}

func TestRoasteryDelete(t *testing.T) {
	srv := newTestServer(t)
	b := srv.browser(t)
	b.register("nikhil", "nikhil@example.com")

	var created roasteryResponse
	decodeJSON(t, b.postJSON("/api/roasteries", map[string]string{"name": "Heart"}), &created)

	resp := b.do(http.MethodDelete, "/api/roasteries/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	readBody(t, resp)

	gone := b.get("/api/roasteries/" + created.ID)
	wantError(t, gone, http.StatusNotFound, "not_found")
}

func TestRoasteryDelete_Unknown(t *testing.T) {
	srv := newTestServer(t)
	b := srv.browser(t)
	b.register("nikhil", "nikhil@example.com")

	resp := b.do(http.MethodDelete, "/api/roasteries/no-such-id", nil)
	wantError(t, resp, http.StatusNotFound, "not_found")
}

func TestRoastery_CreatorDeletionClearsCreatedBy(t *testing.T) {
	srv := newTestServer(t)
	b := srv.browser(t)
	b.register("nikhil", "nikhil@example.com")

	var created roasteryResponse
	decodeJSON(t, b.postJSON("/api/roasteries", map[string]string{"name": "Heart"}), &created)
	if created.CreatedBy == "" {
		t.Fatal("expected created_by to be set")
	}

	readBody(t, b.do(http.MethodDelete, "/api/users/me", nil))

	// The directory entry survives; the creator reference is cleared
	var got roasteryResponse
	decodeJSON(t, srv.browser(t).get("/api/roasteries/"+created.ID), &got)
	if got.Name != "Heart" {
		t.Errorf("name = %q, want %q", got.Name, "Heart")
	}
	if got.CreatedBy != "" {
		t.Errorf("created_by = %q, want empty after creator deletion", got.CreatedBy)
	}
}
