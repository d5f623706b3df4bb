package launcher

import "testing"

func floatPtr(f float64) *float64 { return &f }

func TestCrawlMessageValidateRequiresCoreFields(t *testing.T) {
	valid := CrawlMessage{Project: "P", Spider: "S", Job: "J", Priority: floatPtr(1)}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid message, got error: %v", err)
	}

	missingProject := valid
	missingProject.Project = ""
	if err := missingProject.Validate(); err == nil {
		t.Fatal("expected error for missing project")
	}

	missingPriority := valid
	missingPriority.Priority = nil
	if err := missingPriority.Validate(); err == nil {
		t.Fatal("expected error for missing priority")
	}
}

func TestCrawlMessageZeroPriorityIsValid(t *testing.T) {
	msg := CrawlMessage{Project: "P", Spider: "S", Job: "J", Priority: floatPtr(0)}
	if err := msg.Validate(); err != nil {
		t.Fatalf("zero priority should be valid when explicitly set: %v", err)
	}
}

func TestCrawlArgsSortedAndFlagged(t *testing.T) {
	msg := CrawlMessage{
		Project: "P", Spider: "S", Job: "J", Priority: floatPtr(1),
		Args: map[string]string{"b": "2", "a": "1"},
	}
	got := msg.CrawlArgs()
	want := []string{"-a", "a=1", "-a", "b=2"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestWithNewJobChangesOnlyJob(t *testing.T) {
	msg := CrawlMessage{Project: "P", Spider: "S", Job: "J1", Priority: floatPtr(1), Count: 3}
	next := msg.WithCount(2).WithNewJob()

	if next.Job == msg.Job {
		t.Fatal("expected a fresh job id")
	}
	if next.Project != msg.Project || next.Spider != msg.Spider {
		t.Fatal("project/spider must be preserved across repeat-count resubmission")
	}
	if next.Count != 2 {
		t.Fatalf("expected count 2, got %d", next.Count)
	}
}

func TestEffectiveCountDefaultsToOne(t *testing.T) {
	msg := CrawlMessage{}
	if msg.EffectiveCount() != 1 {
		t.Fatalf("expected default count 1, got %d", msg.EffectiveCount())
	}
}
