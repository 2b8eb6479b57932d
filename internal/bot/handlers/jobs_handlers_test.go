package handlers

import (
	"testing"
)

func TestParseAddArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		text       string
		wantName   string
		wantIdent  string
		wantCron   string
		wantParams string
		wantChats  []int64
		wantErr    bool
	}{
		{
			name:       "minimal",
			text:       "/job_add nightly cleanup_runs 0 6 * * *",
			wantName:   "nightly",
			wantIdent:  "cleanup_runs",
			wantCron:   "0 6 * * *",
			wantParams: "{}",
			wantChats:  []int64{500},
		},
		{
			name:       "with params",
			text:       `/job_add nightly cleanup_runs @daily | {"retention_days": 7}`,
			wantName:   "nightly",
			wantIdent:  "cleanup_runs",
			wantCron:   "@daily",
			wantParams: `{"retention_days": 7}`,
			wantChats:  []int64{500},
		},
		{
			name:       "with explicit chats",
			text:       "/job_add digest usecase:report.DailyDigest 0 8 * * * | | 100, -200",
			wantName:   "digest",
			wantIdent:  "usecase:report.DailyDigest",
			wantCron:   "0 8 * * *",
			wantParams: "{}",
			wantChats:  []int64{100, -200},
		},
		{
			name:    "too few arguments",
			text:    "/job_add nightly cleanup_runs",
			wantErr: true,
		},
		{
			name:    "bad chat id",
			text:    "/job_add nightly cleanup_runs @daily | {} | abc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req, err := parseAddArgs(tt.text, 500)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseAddArgs(%q) = %+v, want error", tt.text, req)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAddArgs(%q) returned error: %v", tt.text, err)
			}

			if req.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", req.Name, tt.wantName)
			}
			if req.Identifier != tt.wantIdent {
				t.Errorf("Identifier = %q, want %q", req.Identifier, tt.wantIdent)
			}
			if req.Schedule != tt.wantCron {
				t.Errorf("Schedule = %q, want %q", req.Schedule, tt.wantCron)
			}
			if req.Params != tt.wantParams {
				t.Errorf("Params = %q, want %q", req.Params, tt.wantParams)
			}
			if len(req.ChatIDs) != len(tt.wantChats) {
				t.Fatalf("ChatIDs = %v, want %v", req.ChatIDs, tt.wantChats)
			}
			for i := range tt.wantChats {
				if req.ChatIDs[i] != tt.wantChats[i] {
					t.Errorf("ChatIDs[%d] = %d, want %d", i, req.ChatIDs[i], tt.wantChats[i])
				}
			}
			if req.AllowUnschedulable {
				t.Error("Telegram add path must not bypass the schedulability check")
			}
		})
	}
}
