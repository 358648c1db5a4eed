package database

import (
	"context"
	"fmt"

	"milestone-escrow-go/internal/models"
)

// RecordNotification inserts the dedup receipt; an existing key means the
// event was already applied.
func (q *queries) RecordNotification(ctx context.Context, r models.NotificationReceipt) error {
	result, err := q.db.ExecContext(ctx, queryInsertNotification,
		r.Key, r.OrderId, r.TransactionStatus, formatTime(r.ReceivedAt))
	if err != nil {
		return fmt.Errorf("unable to record notification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrDuplicateNotification, r.Key)
	}
	return nil
}

func (q *queries) InsertJournalEntries(ctx context.Context, entries []models.JournalEntry) error {
	for _, e := range entries {
		_, err := q.db.ExecContext(ctx, queryInsertJournalEntry,
			e.Id, e.Reference, e.EventType, e.AccountType, e.AccountId,
			e.DebitAmount.String(), e.CreditAmount.String(), formatTime(e.CreatedAt))
		if err != nil {
			return fmt.Errorf("unable to insert journal entry for %s: %w", e.Reference, err)
		}
	}
	return nil
}

func (q *queries) ListJournalEntries(ctx context.Context, reference string) ([]models.JournalEntry, error) {
	rows, err := q.db.QueryContext(ctx, queryListJournalEntries, reference)
	if err != nil {
		return nil, fmt.Errorf("unable to query journal entries: %w", err)
	}
	defer closeRows(rows)

	var entries []models.JournalEntry
	for rows.Next() {
		var (
			e         models.JournalEntry
			createdAt string
		)
		if err := rows.Scan(&e.Id, &e.Reference, &e.EventType, &e.AccountType, &e.AccountId,
			&e.DebitAmount, &e.CreditAmount, &createdAt); err != nil {
			return nil, fmt.Errorf("unable to scan journal entry: %w", err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal entries: %w", err)
	}
	return entries, nil
}
