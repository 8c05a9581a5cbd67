package models

import "testing"

func TestParseTriggerConfig(t *testing.T) {
	tests := []struct {
		name        string
		triggerType string
		raw         string
		wantErr     bool
	}{
		{"gmail empty config ok", TriggerGmailEmail, "", false},
		{"gmail filters ok", TriggerGmailEmail, `{"from_filter":"alice","has_attachment":true}`, false},
		{"gmail bad json", TriggerGmailEmail, "{", true},
		{"clickup with workspace ok", TriggerClickUpTaskCreated, `{"workspace_id":"ws1"}`, false},
		{"clickup missing workspace", TriggerClickUpTaskCreated, `{"list_id":"l1"}`, true},
		{"schedule with cron ok", TriggerSchedule, `{"cron":"0 9 * * 1"}`, false},
		{"schedule missing cron", TriggerSchedule, `{}`, true},
		{"unknown type", "smoke_signal", `{}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTriggerConfig(tt.triggerType, []byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseTriggerConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseActionConfig(t *testing.T) {
	tests := []struct {
		name       string
		actionType string
		raw        string
		wantErr    bool
	}{
		{"send_email ok", ActionSendEmail, `{"to":"ops@example.com","subject":"s"}`, false},
		{"send_email missing to", ActionSendEmail, `{"subject":"s"}`, true},
		{"create_task ok", ActionClickUpCreateTask, `{"list_id":"l1","title":"t"}`, false},
		{"create_task missing list", ActionClickUpCreateTask, `{"title":"t"}`, true},
		{"create_task missing title", ActionClickUpCreateTask, `{"list_id":"l1"}`, true},
		{"add_comment ok", ActionClickUpAddComment, `{"comment":"hi"}`, false},
		{"add_comment missing comment", ActionClickUpAddComment, `{"task_id":"t1"}`, true},
		{"unknown type", "carrier_pigeon", `{}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseActionConfig(tt.actionType, []byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseActionConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAutomationTriggerAccessors(t *testing.T) {
	gmail := &Automation{TriggerType: TriggerGmailEmail, TriggerConfig: `{"from_filter":"alice"}`}
	cfg, err := gmail.GmailTrigger()
	if err != nil {
		t.Fatalf("GmailTrigger: %v", err)
	}
	if cfg.FromFilter != "alice" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if _, err := gmail.ClickUpTrigger(); err == nil {
		t.Error("expected type mismatch error")
	}

	clickup := &Automation{TriggerType: TriggerClickUpTaskUpdated, TriggerConfig: `{"workspace_id":"ws1","list_id":"l1"}`}
	ccfg, err := clickup.ClickUpTrigger()
	if err != nil {
		t.Fatalf("ClickUpTrigger: %v", err)
	}
	if ccfg.ListID != "l1" {
		t.Errorf("unexpected config: %+v", ccfg)
	}
}
