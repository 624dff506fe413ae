package content

import (
	"testing"

	"github.com/yanizio/sitepress/internal/apperr"
)

func strp(s string) *string { return &s }

func TestPageCodec_Normalize(t *testing.T) {
	cases := []struct {
		in   PageMeta
		slug string
	}{
		{PageMeta{Title: "Home"}, "home"},
		{PageMeta{Title: "About Us", Slug: "  "}, "about-us"},
		{PageMeta{Title: "Contact", Slug: "Get In Touch!"}, "get-in-touch"},
	}
	for _, tc := range cases {
		got, err := PageCodec{}.Normalize(tc.in)
		if err != nil {
			t.Fatalf("Normalize(%+v): %v", tc.in, err)
		}
		if got.Slug != tc.slug {
			t.Errorf("Normalize(%+v).Slug = %q, want %q", tc.in, got.Slug, tc.slug)
		}
	}
	if _, err := (PageCodec{}).Normalize(PageMeta{Title: "   "}); !apperr.IsValidation(err) {
		t.Fatalf("blank title err = %v", err)
	}
}

func TestPageCodec_ApplyOnlySuppliedFields(t *testing.T) {
	base := PageMeta{Slug: "home", Title: "Home", Description: "Welcome"}

	got, err := PageCodec{}.Apply(base, PagePatch{Description: strp("")})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.Slug != "home" || got.Title != "Home" || got.Description != "" {
		t.Fatalf("unexpected result %+v", got)
	}

	got, err = PageCodec{}.Apply(base, PagePatch{})
	if err != nil || got != base {
		t.Fatalf("empty patch changed meta: %+v, %v", got, err)
	}

	if _, err := (PageCodec{}).Apply(base, PagePatch{Slug: strp("")}); !apperr.IsValidation(err) {
		t.Fatalf("explicit empty slug err = %v", err)
	}
}

func TestItemCodec(t *testing.T) {
	if _, err := (ItemCodec{}).Normalize(ItemMeta{Title: "x"}); !apperr.IsValidation(err) {
		t.Fatalf("missing collection err = %v", err)
	}
	cid := uint64(4)
	got, err := ItemCodec{}.Apply(ItemMeta{CollectionID: 3, Title: "Old"}, ItemPatch{CollectionID: &cid})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.CollectionID != 4 || got.Title != "Old" {
		t.Fatalf("unexpected result %+v", got)
	}
	if (ItemCodec{}).Slug(got) != "" {
		t.Fatal("items have no slug")
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"", "DRAFT", "PUBLISHED"} {
		if _, err := ParseStatus(s); err != nil {
			t.Errorf("ParseStatus(%q): %v", s, err)
		}
	}
	if _, err := ParseStatus("published"); !apperr.IsValidation(err) {
		t.Fatalf("lower-case status accepted: %v", err)
	}
}
