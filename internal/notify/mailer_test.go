package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/primepix/orderflow/internal/orders"
)

func TestSendConfirmation_BuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	m := NewSMTPMailer("smtp.example.com", "587", "user", "pass", "PrimePix AI <hello@primepixai.com>")
	m.sendFunc = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	order := orders.Order{
		OrderID:       "order-1",
		CustomerEmail: "jo@example.com",
		CustomerName:  "Jo",
		Package:       "portrait-pro",
		Rush:          true,
	}
	if err := m.SendConfirmation(context.Background(), order); err != nil {
		t.Fatalf("SendConfirmation error: %v", err)
	}

	if gotAddr != "smtp.example.com:587" {
		t.Errorf("unexpected addr: %s", gotAddr)
	}
	if gotFrom != "hello@primepixai.com" {
		t.Errorf("envelope from must be the bare address, got %s", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "jo@example.com" {
		t.Errorf("unexpected recipients: %v", gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: Order Confirmed - portrait-pro") {
		t.Errorf("missing subject: %s", msg)
	}
	if !strings.Contains(msg, "Thank you for your order, Jo!") {
		t.Errorf("missing greeting: %s", msg)
	}
	if !strings.Contains(msg, "Yes (24-hour turnaround)") {
		t.Errorf("rush flag not rendered: %s", msg)
	}
}

func TestSendConfirmation_PropagatesFailure(t *testing.T) {
	m := NewSMTPMailer("smtp.example.com", "587", "", "", "hello@primepixai.com")
	m.sendFunc = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("connection refused")
	}
	err := m.SendConfirmation(context.Background(), orders.Order{CustomerEmail: "jo@example.com"})
	if err == nil {
		t.Fatal("expected error")
	}
}
