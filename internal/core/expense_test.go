package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestLocationValidate(t *testing.T) {
	cases := []struct {
		loc Location
		ok  bool
	}{
		{Location{Latitude: 45.46, Longitude: 9.19, Address: "Milano"}, true},
		{Location{Latitude: -90, Longitude: 180}, true},
		{Location{Latitude: 91, Longitude: 0}, false},
		{Location{Latitude: 0, Longitude: -181}, false},
		{Location{Address: strings.Repeat("a", MaxAddressLen+1)}, false},
		{Location{Address: strings.Repeat("ü", MaxAddressLen)}, true},
		{Location{Address: strings.Repeat("ü", MaxAddressLen+1)}, false},
	}
	for i, tc := range cases {
		err := tc.loc.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestExpenseValidate(t *testing.T) {
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	good := Expense{
		Category:    "Food",
		Description: "lunch",
		Amount:      Money{Cents: 1250},
		Date:        day,
		Location:    &Location{Latitude: 41.9, Longitude: 12.5},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Expense{
		{Category: "c", Description: "d", Amount: Money{Cents: 1}},
		{Category: "", Description: "d", Amount: Money{Cents: 1}, Date: day},
		{Category: "c", Description: " ", Amount: Money{Cents: 1}, Date: day},
		{Category: "c", Description: strings.Repeat("x", MaxDescriptionLen+1), Amount: Money{Cents: 1}, Date: day},
		{Category: "c", Description: "d", Amount: Money{Cents: 0}, Date: day},
		{Category: "c", Description: "d", Amount: Money{Cents: 1}, Date: day, Location: &Location{Latitude: 100}},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestExpenseValidateCountsCharacters(t *testing.T) {
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name        string
		category    string
		description string
		ok          bool
	}{
		{"accented description at limit", "Food", strings.Repeat("é", MaxDescriptionLen), true},
		{"accented description over limit", "Food", strings.Repeat("é", MaxDescriptionLen+1), false},
		{"short multi-byte description", "Food", strings.Repeat("é", 150), true},
		{"cjk category at limit", strings.Repeat("食", MaxCategoryLen), "lunch", true},
		{"cjk category over limit", strings.Repeat("食", MaxCategoryLen+1), "lunch", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := Expense{Category: tc.category, Description: tc.description, Amount: Money{Cents: 100}, Date: day}
			err := e.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected ok, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrTooLong) {
				t.Fatalf("expected ErrTooLong, got %v", err)
			}
		})
	}
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay(" 2025-02-28 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Year() != 2025 || d.Month() != time.February || d.Day() != 28 {
		t.Fatalf("unexpected date %v", d)
	}
	if _, err := ParseDay("28/02/2025"); err != ErrInvalidDate {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestRoleValid(t *testing.T) {
	if !RoleAdmin.Valid() || !RoleUser.Valid() {
		t.Fatal("builtin roles must be valid")
	}
	if Role("root").Valid() {
		t.Fatal("unknown role must be invalid")
	}
}

func TestIsValidation(t *testing.T) {
	long := Expense{Category: "c", Description: strings.Repeat("x", MaxDescriptionLen+1), Amount: Money{Cents: 1}, Date: time.Now()}
	if err := long.Validate(); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if IsValidation(ErrNotFound) || IsValidation(nil) {
		t.Fatal("not found and nil are not validation errors")
	}
}
