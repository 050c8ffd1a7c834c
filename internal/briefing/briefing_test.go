package briefing

import (
	"context"
	"strings"
	"testing"
	"time"
)

type fakeSource struct {
	dossier     DossierInfo
	brief       BriefInfo
	hasBrief    bool
	engagements []EngagementInfo
	assignments []AssignmentInfo
	events      []EventInfo
}

func (f *fakeSource) GetDossier(ctx context.Context, id string) (DossierInfo, error) {
	return f.dossier, nil
}

func (f *fakeSource) CurrentBrief(dossierID string) (BriefInfo, bool, error) {
	return f.brief, f.hasBrief, nil
}

func (f *fakeSource) ListEngagements(ctx context.Context, dossierID string) ([]EngagementInfo, error) {
	return f.engagements, nil
}

func (f *fakeSource) ListOpenAssignments(ctx context.Context, dossierID string) ([]AssignmentInfo, error) {
	return f.assignments, nil
}

func (f *fakeSource) RecentEvents(ctx context.Context, dossierID string, limit int) ([]EventInfo, error) {
	return f.events, nil
}

func testSource() *fakeSource {
	starts := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	deadline := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	return &fakeSource{
		dossier: DossierInfo{
			ID:        "dos_1",
			Kind:      "country",
			NameEN:    "Kingdom of Jordan",
			NameAR:    "المملكة الأردنية",
			SummaryEN: "Bilateral statistics cooperation.",
			SummaryAR: "التعاون الإحصائي الثنائي.",
			Status:    "active",
		},
		brief: BriefInfo{
			TitleEN:     "Cooperation Outlook",
			TitleAR:     "آفاق التعاون",
			SummaryEN:   "Joint census program on track.",
			SummaryAR:   "برنامج التعداد المشترك يسير كما هو مخطط.",
			KeyPointsEN: []string{"MoU renewal due Q3"},
			KeyPointsAR: []string{"تجديد مذكرة التفاهم في الربع الثالث"},
		},
		hasBrief: true,
		engagements: []EngagementInfo{
			{TitleEN: "Technical visit", TitleAR: "زيارة فنية", Kind: "visit", Location: "Amman", StartsAt: &starts},
		},
		assignments: []AssignmentInfo{
			{Title: "Prepare talking points", AssigneeName: "Reem", Status: "in_progress", Priority: "high", SLADeadline: &deadline},
		},
		events: []EventInfo{
			{EventType: "assignment.escalated", OccurredAt: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)},
		},
	}
}

func TestComposeHTMLEnglish(t *testing.T) {
	svc := NewService(testSource())

	html, title, err := svc.composeHTML(context.Background(), Request{
		DossierID:          "dos_1",
		Language:           "en",
		IncludeAssignments: true,
	})
	if err != nil {
		t.Fatalf("composeHTML() error = %v", err)
	}
	if title != "Kingdom of Jordan" {
		t.Fatalf("title = %q", title)
	}
	if !strings.Contains(html, `dir="ltr"`) {
		t.Error("expected LTR layout for English")
	}
	for _, want := range []string{
		"Kingdom of Jordan",
		"المملكة الأردنية", // counterpart name as subtitle
		"Cooperation Outlook",
		"MoU renewal due Q3",
		"Technical visit",
		"Prepare talking points",
		"assignment.escalated",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestComposeHTMLArabicIsRTL(t *testing.T) {
	svc := NewService(testSource())

	html, title, err := svc.composeHTML(context.Background(), Request{
		DossierID: "dos_1",
		Language:  "ar",
	})
	if err != nil {
		t.Fatalf("composeHTML() error = %v", err)
	}
	if title != "المملكة الأردنية" {
		t.Fatalf("title = %q", title)
	}
	if !strings.Contains(html, `dir="rtl"`) {
		t.Error("expected RTL layout for Arabic")
	}
	if !strings.Contains(html, "الموجز التحليلي") {
		t.Error("expected Arabic section headings")
	}
	if !strings.Contains(html, "آفاق التعاون") {
		t.Error("expected Arabic brief title")
	}
}

func TestComposeHTMLOmitsAssignmentsWhenNotRequested(t *testing.T) {
	svc := NewService(testSource())

	html, _, err := svc.composeHTML(context.Background(), Request{
		DossierID: "dos_1",
		Language:  "en",
	})
	if err != nil {
		t.Fatalf("composeHTML() error = %v", err)
	}
	if strings.Contains(html, "Prepare talking points") {
		t.Error("assignments rendered without IncludeAssignments")
	}
}

func TestComposeHTMLWithoutBrief(t *testing.T) {
	source := testSource()
	source.hasBrief = false
	svc := NewService(source)

	html, _, err := svc.composeHTML(context.Background(), Request{
		DossierID: "dos_1",
		Language:  "en",
	})
	if err != nil {
		t.Fatalf("composeHTML() error = %v", err)
	}
	if strings.Contains(html, "Analytical Brief") {
		t.Error("brief section rendered with no brief")
	}
}

func TestComposeHTMLFallsBackAcrossLanguages(t *testing.T) {
	source := testSource()
	source.dossier.NameAR = ""
	source.dossier.SummaryAR = ""
	svc := NewService(source)

	html, title, err := svc.composeHTML(context.Background(), Request{
		DossierID: "dos_1",
		Language:  "ar",
	})
	if err != nil {
		t.Fatalf("composeHTML() error = %v", err)
	}
	if title != "Kingdom of Jordan" {
		t.Fatalf("expected English fallback title, got %q", title)
	}
	if !strings.Contains(html, "Bilateral statistics cooperation.") {
		t.Error("expected English fallback summary")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Kingdom of Jordan", "Kingdom-of-Jordan"},
		{"Dossier v1.2", "Dossier-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "briefing-pack"},
		{"المملكة الأردنية", "briefing-pack"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
