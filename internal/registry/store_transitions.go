package registry

import (
	"context"
	"fmt"
)

// Transition moves a document from one status to another. The pair must be in
// the legal transition set (fail fast on anything else) and the document must
// still hold the expected from status; the conditional UPDATE makes the check
// and the write one atomic step, so concurrent workers cannot both win.
func (s *Store) Transition(ctx context.Context, id int64, from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE documents SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, timestamp(), id, from,
	)
	if err != nil {
		return fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.transitionConflict(ctx, id, from, to)
	}
	return nil
}

func (s *Store) transitionConflict(ctx context.Context, id int64, from, to Status) error {
	doc, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s -> %s, document %d is %s", ErrConflict, from, to, id, doc.Status)
}

// Complete records a successful processing pass: terminal status plus output
// paths in one write, conditional on the expected in-flight status.
func (s *Store) Complete(ctx context.Context, id int64, from Status, outputs Outputs) error {
	if !CanTransition(from, StatusCompleted) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, StatusCompleted)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE documents
         SET status = ?, error_message = NULL,
             output_text_path = ?, output_pdf_path = ?, output_markup_path = ?,
             updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted,
		nullableString(outputs.TextPath),
		nullableString(outputs.PDFPath),
		nullableString(outputs.MarkupPath),
		timestamp(), id, from,
	)
	if err != nil {
		return fmt.Errorf("complete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.transitionConflict(ctx, id, from, StatusCompleted)
	}
	return nil
}

// Fail records a failed processing pass with its diagnostic detail.
func (s *Store) Fail(ctx context.Context, id int64, from Status, message string) error {
	if !CanTransition(from, StatusError) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, StatusError)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE documents SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusError, nullableString(message), timestamp(), id, from,
	)
	if err != nil {
		return fmt.Errorf("fail document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.transitionConflict(ctx, id, from, StatusError)
	}
	return nil
}

// Requeue resets an errored document for another processing pass.
func (s *Store) Requeue(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE documents SET status = ?, error_message = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		StatusQueued, timestamp(), id, StatusError,
	)
	if err != nil {
		return fmt.Errorf("requeue document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.transitionConflict(ctx, id, StatusError, StatusQueued)
	}
	return nil
}

// ClaimProcessing moves a queued document to processing. A document that is
// already processing is accepted as well: a job reclaimed from a dead worker
// replays against a record its first run had already advanced.
func (s *Store) ClaimProcessing(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE documents SET status = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		StatusProcessing, timestamp(), id, StatusQueued, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("claim processing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.transitionConflict(ctx, id, StatusQueued, StatusProcessing)
	}
	return nil
}

// ClaimMerge atomically claims the merge of a container. Two workers that
// both observe all siblings completed will both call this; only the one whose
// UPDATE flips processing to merging may enqueue the merge job.
func (s *Store) ClaimMerge(ctx context.Context, parentID int64) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE documents SET status = ?, updated_at = ?
         WHERE id = ? AND status = ? AND is_container = 1`,
		StatusMerging, timestamp(), parentID, StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("claim merge: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// BeginContainerProcessing moves a queued container to processing when its
// first page starts. Safe to call from every page's worker; losers of the
// race see zero rows and that is fine.
func (s *Store) BeginContainerProcessing(ctx context.Context, parentID int64) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE documents SET status = ?, updated_at = ?
         WHERE id = ? AND status = ? AND is_container = 1`,
		StatusProcessing, timestamp(), parentID, StatusQueued,
	)
	if err != nil {
		return fmt.Errorf("begin container processing: %w", err)
	}
	return nil
}
