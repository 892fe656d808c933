package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/fintrack/fintrack/internal/domain/transaction"
	"github.com/fintrack/fintrack/internal/domain/user"
	"github.com/fintrack/fintrack/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

type fieldErrorView struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param"`
	Message string `json:"message"`
}

func bindRoute[T any]() *gin.Engine {
	r := gin.New()
	r.POST("/bind", func(ctx *gin.Context) {
		var req T
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"success": true})
	})

	return r
}

func TestBindReportsJSONFieldNames(t *testing.T) {
	r := bindRoute[transaction.CreateRequest]()

	w := postJSON(r, "/bind",
		`{"amount":-5,"type":"transfer","category":"Food"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool             `json:"success"`
		Message string           `json:"message"`
		Errors  []fieldErrorView `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}

	if resp.Success || resp.Message != "Invalid request body" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}

	byField := map[string]fieldErrorView{}
	for _, fe := range resp.Errors {
		byField[fe.Field] = fe
	}

	// field names come from the json tags, not the Go identifiers
	if fe, ok := byField["amount"]; !ok || fe.Rule != "gt" {
		t.Fatalf("amount error missing or wrong rule: %+v", resp.Errors)
	}
	if fe, ok := byField["type"]; !ok || fe.Rule != "oneof" {
		t.Fatalf("type error missing or wrong rule: %+v", resp.Errors)
	}
	if fe, ok := byField["description"]; !ok || fe.Rule != "required" {
		t.Fatalf("description error missing or wrong rule: %+v", resp.Errors)
	}
	if _, leaked := byField["Amount"]; leaked {
		t.Fatalf("Go field name leaked into the error payload")
	}
}

func TestBindValidationMessages(t *testing.T) {
	r := bindRoute[user.RegisterRequest]()

	w := postJSON(r, "/bind",
		`{"email":"not-an-email","password":"abc","firstName":"Ada","lastName":"Lovelace","currency":"XYZ"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Errors []fieldErrorView `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}

	byField := map[string]fieldErrorView{}
	for _, fe := range resp.Errors {
		byField[fe.Field] = fe
	}

	if fe := byField["email"]; fe.Message != "must be a valid email address" {
		t.Fatalf("email message = %q", fe.Message)
	}
	if fe := byField["password"]; fe.Rule != "min" || fe.Message != "must be at least 6" {
		t.Fatalf("password error = %+v", fe)
	}
	if fe := byField["currency"]; fe.Rule != "oneof" {
		t.Fatalf("currency error = %+v", fe)
	}
}

func TestBindMalformedJSON(t *testing.T) {
	r := bindRoute[transaction.CreateRequest]()

	w := postJSON(r, "/bind", `{"amount": 10,`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp struct {
		Errors []fieldErrorView `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}

	if len(resp.Errors) != 1 || resp.Errors[0].Rule != "json" {
		t.Fatalf("expected a single json syntax error, got %+v", resp.Errors)
	}
}

func TestBindWrongFieldType(t *testing.T) {
	r := bindRoute[transaction.CreateRequest]()

	w := postJSON(r, "/bind",
		`{"amount":"ten","type":"expense","description":"Lunch","category":"Food"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp struct {
		Errors []fieldErrorView `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}

	if len(resp.Errors) != 1 || resp.Errors[0].Rule != "type" || resp.Errors[0].Field != "amount" {
		t.Fatalf("expected a type error on amount, got %+v", resp.Errors)
	}
}
