package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"polytrader/internal/models"
)

// ============================================================
// TradeRepository Tests
// ============================================================

var tradeRows = []string{
	"id", "token_id", "side", "amount", "price", "pnl", "strategy", "confidence", "tx_ref", "created_at",
}

func TestNewTradeRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewTradeRepository(db)
	if repo == nil {
		t.Fatal("NewTradeRepository returned nil")
	}
	if repo.db != db {
		t.Error("db not set correctly")
	}
}

func TestTradeRepositoryCreate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		trade       *models.TradeRecord
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "success",
			trade: &models.TradeRecord{
				ID:         "trade-1",
				TokenID:    "token-a",
				Side:       "BUY",
				Amount:     50,
				Price:      0.45,
				Pnl:        0,
				Strategy:   "momentum",
				Confidence: 0.9,
				TxRef:      "tx-1",
				CreatedAt:  now,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO trades`).
					WithArgs("trade-1", "token-a", "BUY", 50.0, 0.45, 0.0, "momentum", 0.9, "tx-1", now).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			expectError: false,
		},
		{
			name: "database error",
			trade: &models.TradeRecord{
				ID:      "trade-2",
				TokenID: "token-a",
				Side:    "SELL",
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO trades`).
					WillReturnError(errors.New("database error"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewTradeRepository(db)
			err = repo.Create(tt.trade)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestTradeRepositoryGetByID(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		id          string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name: "success",
			id:   "trade-1",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(tradeRows).
					AddRow("trade-1", "token-a", "BUY", 50.0, 0.45, 0.0, "momentum", 0.9, "tx-1", now)
				mock.ExpectQuery(`SELECT .+ FROM trades WHERE id = \$1`).
					WithArgs("trade-1").
					WillReturnRows(rows)
			},
			expectError: nil,
		},
		{
			name: "not found",
			id:   "missing",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM trades WHERE id = \$1`).
					WithArgs("missing").
					WillReturnError(sql.ErrNoRows)
			},
			expectError: ErrTradeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewTradeRepository(db)
			result, err := repo.GetByID(tt.id)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected error %v, got %v", tt.expectError, err)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if result.TokenID != "token-a" {
					t.Errorf("expected TokenID=token-a, got %s", result.TokenID)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestTradeRepositoryGetRecent(t *testing.T) {
	now := time.Now()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(tradeRows).
		AddRow("trade-2", "token-b", "SELL", 60.0, 0.6, 10.0, "momentum", 0.8, "tx-2", now).
		AddRow("trade-1", "token-a", "BUY", 50.0, 0.45, 0.0, "momentum", 0.9, "tx-1", now)
	mock.ExpectQuery(`SELECT .+ FROM trades ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(10).
		WillReturnRows(rows)

	repo := NewTradeRepository(db)
	result, err := repo.GetRecent(10)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("expected 2 trades, got %d", len(result))
	}
	if result[0].Pnl != 10.0 {
		t.Errorf("expected Pnl=10, got %f", result[0].Pnl)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTradeRepositoryListPnl(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	// хронологический порядок: старые первыми
	rows := sqlmock.NewRows([]string{"pnl"}).
		AddRow(10.0).
		AddRow(-5.0).
		AddRow(15.0)
	mock.ExpectQuery(`SELECT pnl FROM`).
		WithArgs(100).
		WillReturnRows(rows)

	repo := NewTradeRepository(db)
	pnls, err := repo.ListPnl(100)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(pnls) != 3 {
		t.Fatalf("expected 3 pnls, got %d", len(pnls))
	}
	if pnls[0] != 10.0 || pnls[2] != 15.0 {
		t.Errorf("unexpected order: %v", pnls)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTradeRepositoryTotalPnl(t *testing.T) {
	tests := []struct {
		name      string
		mockSetup func(mock sqlmock.Sqlmock)
		expected  float64
	}{
		{
			name: "with trades",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"sum"}).AddRow(42.5)
				mock.ExpectQuery(`SELECT SUM\(pnl\) FROM trades`).WillReturnRows(rows)
			},
			expected: 42.5,
		},
		{
			name: "empty table returns zero",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"sum"}).AddRow(nil)
				mock.ExpectQuery(`SELECT SUM\(pnl\) FROM trades`).WillReturnRows(rows)
			},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewTradeRepository(db)
			total, err := repo.TotalPnl()

			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if total != tt.expected {
				t.Errorf("expected total=%f, got %f", tt.expected, total)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}
