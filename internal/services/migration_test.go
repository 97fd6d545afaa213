package services

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/apierr"
	"github.com/teknokomo/universo-platformo-backend/internal/template"
)

func TestMigrationRequestCleanupMode(t *testing.T) {
	svc := &migrationService{log: logger.NewNop()}
	metahub := uuid.New()

	cases := []struct {
		name    string
		mode    string
		want    template.CleanupMode
		wantErr bool
	}{
		{"empty_defaults_to_keep", "", template.CleanupKeep, false},
		{"keep", "keep", template.CleanupKeep, false},
		{"dry_run", "dry_run", template.CleanupDryRun, false},
		{"confirm", "confirm", template.CleanupConfirm, false},
		{"unknown", "purge", "", true},
		{"wrong_case", "Confirm", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := svc.request(MigrationInput{MetahubID: metahub, CleanupMode: tc.mode})
			if tc.wantErr {
				var ae *apierr.Error
				if !errors.As(err, &ae) {
					t.Fatalf("expected apierr.Error, got %v", err)
				}
				if ae.Status != http.StatusBadRequest || ae.Code != apierr.CodeCleanupModeReadOnly {
					t.Fatalf("wrong rejection: %+v", ae)
				}
				return
			}
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if req.CleanupMode != tc.want || req.MetahubID != metahub {
				t.Fatalf("request = %+v, want mode %q", req, tc.want)
			}
		})
	}
}
