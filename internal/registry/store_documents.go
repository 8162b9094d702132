package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// NewDocument describes a standalone document to be registered.
type NewDocument struct {
	Name          string
	Owner         string
	DirectoryName string
}

// NewPage describes one page of a container at registration time.
type NewPage struct {
	Name string
}

// NewContainer describes a multi-page container and its pages. Pages share
// the container's directory name and receive page_order 1..N in slice order.
type NewContainer struct {
	Name          string
	Owner         string
	DirectoryName string
	Pages         []NewPage
}

// CreateDocument registers a standalone document with status queued.
func (s *Store) CreateDocument(ctx context.Context, doc NewDocument) (*Document, error) {
	if err := validateNewDocument(doc.Name, doc.Owner, doc.DirectoryName); err != nil {
		return nil, err
	}
	now := timestamp()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO documents (name, owner, status, is_container, page_order, directory_name, created_at, updated_at)
         VALUES (?, ?, ?, 0, 0, ?, ?, ?)`,
		doc.Name, doc.Owner, StatusQueued, doc.DirectoryName, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// CreateContainer registers a container and its pages in one transaction.
// This is the only way to create children, so a child of a child cannot be
// represented through the store API. Pages are assigned page_order 1..N.
func (s *Store) CreateContainer(ctx context.Context, c NewContainer) (*Document, []*Document, error) {
	if err := validateNewDocument(c.Name, c.Owner, c.DirectoryName); err != nil {
		return nil, nil, err
	}
	if len(c.Pages) == 0 {
		return nil, nil, errors.New("container requires at least one page")
	}
	for i, page := range c.Pages {
		if strings.TrimSpace(page.Name) == "" {
			return nil, nil, fmt.Errorf("page %d: name required", i+1)
		}
	}

	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin container tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := timestamp()
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO documents (name, owner, status, is_container, page_order, directory_name, created_at, updated_at)
         VALUES (?, ?, ?, 1, 0, ?, ?, ?)`,
		c.Name, c.Owner, StatusQueued, c.DirectoryName, now, now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("insert container: %w", err)
	}
	parentID, err := res.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("container insert id: %w", err)
	}

	childIDs := make([]int64, 0, len(c.Pages))
	for i, page := range c.Pages {
		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO documents (name, owner, status, is_container, page_order, directory_name, parent_id, created_at, updated_at)
             VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?)`,
			page.Name, c.Owner, StatusQueued, i+1, c.DirectoryName, parentID, now, now,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("insert page %d: %w", i+1, err)
		}
		childID, err := res.LastInsertId()
		if err != nil {
			return nil, nil, fmt.Errorf("page insert id: %w", err)
		}
		childIDs = append(childIDs, childID)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit container: %w", err)
	}

	parent, err := s.GetByID(ctx, parentID)
	if err != nil {
		return nil, nil, err
	}
	children := make([]*Document, 0, len(childIDs))
	for _, id := range childIDs {
		child, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		children = append(children, child)
	}
	return parent, children, nil
}

func validateNewDocument(name, owner, directoryName string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("document name required")
	}
	if strings.TrimSpace(owner) == "" {
		return errors.New("document owner required")
	}
	if strings.TrimSpace(directoryName) == "" {
		return errors.New("directory name required")
	}
	return nil
}

// GetByID fetches a document by identifier. Returns nil when the document no
// longer exists; callers treat that as deleted, not as an error.
func (s *Store) GetByID(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// GetByShareToken fetches a document by its share token.
func (s *Store) GetByShareToken(ctx context.Context, token string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE share_token = ?`, token)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document by token: %w", err)
	}
	return doc, nil
}

// ChildrenOf returns a container's pages ordered by page_order.
func (s *Store) ChildrenOf(ctx context.Context, parentID int64) ([]*Document, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+documentColumns+` FROM documents WHERE parent_id = ? ORDER BY page_order`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query children: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// List returns documents, optionally filtered by owner, ordered by creation time.
func (s *Store) List(ctx context.Context, owner string) ([]*Document, error) {
	var (
		rows *sql.Rows
		err  error
	)
	base := `SELECT ` + documentColumns + ` FROM documents`
	order := ` ORDER BY created_at, id`
	if owner == "" {
		rows, err = s.db.QueryContext(ctx, base+order)
	} else {
		rows, err = s.db.QueryContext(ctx, base+` WHERE owner = ?`+order, owner)
	}
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SiblingProgress returns the total and completed page counts for a
// container. Both counts come from a single query so a caller observes a
// consistent snapshot.
func (s *Store) SiblingProgress(ctx context.Context, parentID int64) (total, completed int, err error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
         FROM documents WHERE parent_id = ?`,
		StatusCompleted, parentID,
	)
	if err := row.Scan(&total, &completed); err != nil {
		return 0, 0, fmt.Errorf("sibling progress: %w", err)
	}
	return total, completed, nil
}

// EnsureShareToken assigns a share token if the document has none and returns
// the effective token. Repeat calls return the first token assigned.
func (s *Store) EnsureShareToken(ctx context.Context, id int64, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", errors.New("share token required")
	}
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE documents SET share_token = ?, updated_at = ? WHERE id = ? AND share_token IS NULL`,
		token, timestamp(), id,
	); err != nil {
		return "", fmt.Errorf("assign share token: %w", err)
	}
	doc, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", ErrNotFound
	}
	return doc.ShareToken, nil
}

// Delete removes a document and, for containers, all of its pages in one
// transaction. Returns false when the document was already gone.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE parent_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete children: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return affected > 0, nil
}

// Health aggregates document state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM documents GROUP BY status`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("document stats: %w", err)
	}
	defer rows.Close()

	health := HealthSummary{}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return HealthSummary{}, err
		}
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusCompleted:
			health.Completed += count
		case StatusError:
			health.Errored += count
		default:
			if status.IsActive() {
				health.Processing += count
			}
		}
	}
	return health, rows.Err()
}

const documentColumns = "id, name, owner, status, error_message, output_text_path, output_pdf_path, output_markup_path, is_container, page_order, directory_name, parent_id, share_token, created_at, updated_at"

func scanDocument(scanner interface{ Scan(dest ...any) error }) (*Document, error) {
	var (
		id          int64
		name        string
		owner       string
		statusStr   string
		errMessage  sql.NullString
		textPath    sql.NullString
		pdfPath     sql.NullString
		markupPath  sql.NullString
		isContainer int
		pageOrder   int
		dirName     string
		parentID    sql.NullInt64
		shareToken  sql.NullString
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&id, &name, &owner, &statusStr, &errMessage,
		&textPath, &pdfPath, &markupPath,
		&isContainer, &pageOrder, &dirName, &parentID, &shareToken,
		&createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	doc := &Document{
		ID:               id,
		Name:             name,
		Owner:            owner,
		Status:           Status(statusStr),
		ErrorMessage:     errMessage.String,
		OutputTextPath:   textPath.String,
		OutputPDFPath:    pdfPath.String,
		OutputMarkupPath: markupPath.String,
		IsContainer:      isContainer != 0,
		PageOrder:        pageOrder,
		DirectoryName:    dirName,
		ShareToken:       shareToken.String,
	}
	if parentID.Valid {
		v := parentID.Int64
		doc.ParentID = &v
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		doc.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		doc.UpdatedAt = updated
	}
	return doc, nil
}
