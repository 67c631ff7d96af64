package web

import "testing"

func TestValidEventID(t *testing.T) {
	valid := []string{
		"3b241101-e2bb-4255-8caf-4136c566a962",
		"3B241101-E2BB-4255-8CAF-4136C566A962",
	}
	for _, id := range valid {
		if !validEventID(id) {
			t.Errorf("%q should be accepted", id)
		}
	}

	invalid := []string{
		"",
		"not-a-uuid",
		"3b241101e2bb42558caf4136c566a962",
		"../3b241101-e2bb-4255-8caf-4136c566",
	}
	for _, id := range invalid {
		if validEventID(id) {
			t.Errorf("%q should be rejected", id)
		}
	}
}

func TestValidPhone(t *testing.T) {
	valid := []string{"+15551234567", "15551234567", "+972501234567"}
	for _, phone := range valid {
		if !validPhone(phone) {
			t.Errorf("%q should be accepted", phone)
		}
	}

	invalid := []string{"", "+1", "555-123-4567", "+1234567890123456", "phone"}
	for _, phone := range invalid {
		if validPhone(phone) {
			t.Errorf("%q should be rejected", phone)
		}
	}
}

func TestValidFilename(t *testing.T) {
	valid := []string{"selfie.jpg", "My Photo 1.jpeg", "a-b_c.png"}
	for _, name := range valid {
		if !validFilename(name) {
			t.Errorf("%q should be accepted", name)
		}
	}

	invalid := []string{"", "../etc/passwd", "nested/path.jpg", ".hidden", `back\slash.jpg`}
	for _, name := range invalid {
		if validFilename(name) {
			t.Errorf("%q should be rejected", name)
		}
	}
}

func TestValidateNameFragment(t *testing.T) {
	valid := []string{"Wedding", "Bar Mitzvah 2026", "smith-jones wedding"}
	for _, v := range valid {
		if err := validateNameFragment("eventName", v); err != nil {
			t.Errorf("%q should be accepted: %v", v, err)
		}
	}

	invalid := []string{"", "   ", "a/b", `a\b`, "..", "."}
	for _, v := range invalid {
		if err := validateNameFragment("eventName", v); err == nil {
			t.Errorf("%q should be rejected", v)
		}
	}
}

func TestValidateEventDate(t *testing.T) {
	if err := validateEventDate("2026-06-01"); err != nil {
		t.Errorf("valid date rejected: %v", err)
	}
	for _, v := range []string{"June 1st", "2026/06/01", "01-06-2026", ""} {
		if err := validateEventDate(v); err == nil {
			t.Errorf("%q should be rejected", v)
		}
	}
}
