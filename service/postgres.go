package service

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AnTengye/dealflow/model"
	"github.com/AnTengye/dealflow/workflow"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ConnectPostgres opens and pings a pooled GORM connection
func ConnectPostgres(ctx context.Context, databaseURL string, maxConns int) (*gorm.DB, error) {
	slog.InfoContext(ctx, "postgres connect started", "module", "postgres")
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	slog.InfoContext(ctx, "postgres connect completed", "module", "postgres")
	return db, nil
}

// RunMigrations applies the embedded SQL migrations in lexical order.
// Every migration is written to be re-runnable.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	names, err := migrationNames(migrationFS)
	if err != nil {
		return err
	}

	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := db.WithContext(ctx).Exec(string(raw)).Error; err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		slog.InfoContext(ctx, "migration applied", "module", "postgres", "migration", name)
	}
	slog.InfoContext(ctx, "postgres migrations completed", "module", "postgres", "migration_count", len(names))
	return nil
}

func migrationNames(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// PostgresStore is the gorm backed Store. Inside Tx, single-row reads take
// a row lock so read-modify-write sequences on one deal or document serialize.
type PostgresStore struct {
	db   *gorm.DB
	inTx bool
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Tx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PostgresStore{db: tx, inTx: true})
	})
}

func (s *PostgresStore) query(ctx context.Context) *gorm.DB {
	q := s.db.WithContext(ctx)
	if s.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return workflow.NotFound(entity, id)
	}
	return fmt.Errorf("load %s %s: %w", entity, id, err)
}

func (s *PostgresStore) CreateContact(ctx context.Context, c *model.Contact) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *PostgresStore) GetContact(ctx context.Context, id string) (*model.Contact, error) {
	var c model.Contact
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error; err != nil {
		return nil, notFound(err, "contact", id)
	}
	return &c, nil
}

func (s *PostgresStore) CreateDeal(ctx context.Context, d *model.Deal) error {
	return s.db.WithContext(ctx).Create(d).Error
}

func (s *PostgresStore) GetDeal(ctx context.Context, id string) (*model.Deal, error) {
	var d model.Deal
	if err := s.query(ctx).Where("id = ?", id).Take(&d).Error; err != nil {
		return nil, notFound(err, "deal", id)
	}
	return &d, nil
}

func (s *PostgresStore) UpdateDeal(ctx context.Context, d *model.Deal) error {
	res := s.db.WithContext(ctx).Model(&model.Deal{}).Where("id = ?", d.ID).Select("*").Updates(d)
	if res.Error != nil {
		return fmt.Errorf("update deal %s: %w", d.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return workflow.NotFound("deal", d.ID)
	}
	return nil
}

func (s *PostgresStore) ListDeals(ctx context.Context, tenant string) ([]model.Deal, error) {
	var deals []model.Deal
	if err := s.db.WithContext(ctx).Where("tenant = ?", tenant).Order("created_at DESC").Find(&deals).Error; err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	return deals, nil
}

func (s *PostgresStore) DeleteDeal(ctx context.Context, id string) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("deal_id = ?", id).Delete(&model.Task{}).Error; err != nil {
		return fmt.Errorf("delete tasks of deal %s: %w", id, err)
	}
	if err := db.Where("id = ?", id).Delete(&model.Deal{}).Error; err != nil {
		return fmt.Errorf("delete deal %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, d *model.Document) error {
	return s.db.WithContext(ctx).Create(d).Error
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var d model.Document
	if err := s.query(ctx).Where("id = ?", id).Take(&d).Error; err != nil {
		return nil, notFound(err, "document", id)
	}
	return &d, nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, d *model.Document) error {
	res := s.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", d.ID).Select("*").Updates(d)
	if res.Error != nil {
		return fmt.Errorf("update document %s: %w", d.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return workflow.NotFound("document", d.ID)
	}
	return nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, dealID string) ([]model.Document, error) {
	var docs []model.Document
	if err := s.db.WithContext(ctx).Where("deal_id = ?", dealID).Order("created_at ASC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("document_id = ?", id).Delete(&model.WorkflowStep{}).Error; err != nil {
		return fmt.Errorf("delete steps of document %s: %w", id, err)
	}
	if err := db.Where("document_id = ?", id).Delete(&model.Signature{}).Error; err != nil {
		return fmt.Errorf("delete signatures of document %s: %w", id, err)
	}
	if err := db.Where("id = ?", id).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// SaveSteps upserts by primary key
func (s *PostgresStore) SaveSteps(ctx context.Context, steps ...model.WorkflowStep) error {
	if len(steps) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&steps).Error
	return saveStepsError(err)
}

// saveStepsError maps a violation of uq_workflow_steps_active to InvalidState
func saveStepsError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return workflow.Errorf(workflow.ErrInvalidState, "document already has an active step of this type")
	}
	return fmt.Errorf("save steps: %w", err)
}

func (s *PostgresStore) GetStep(ctx context.Context, id string) (*model.WorkflowStep, error) {
	var step model.WorkflowStep
	if err := s.query(ctx).Where("id = ?", id).Take(&step).Error; err != nil {
		return nil, notFound(err, "step", id)
	}
	return &step, nil
}

func (s *PostgresStore) ListSteps(ctx context.Context, documentID string) ([]model.WorkflowStep, error) {
	var steps []model.WorkflowStep
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&steps).Error
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	return steps, nil
}

func (s *PostgresStore) CreateSignature(ctx context.Context, sig *model.Signature) error {
	return s.db.WithContext(ctx).Create(sig).Error
}

func (s *PostgresStore) GetSignatureByToken(ctx context.Context, token string) (*model.Signature, error) {
	var sig model.Signature
	if err := s.query(ctx).Where("verification_token = ?", token).Take(&sig).Error; err != nil {
		return nil, notFound(err, "signature", "for token")
	}
	return &sig, nil
}

func (s *PostgresStore) UpdateSignature(ctx context.Context, sig *model.Signature) error {
	res := s.db.WithContext(ctx).Model(&model.Signature{}).Where("id = ?", sig.ID).Select("*").Updates(sig)
	if res.Error != nil {
		return fmt.Errorf("update signature %s: %w", sig.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return workflow.NotFound("signature", sig.ID)
	}
	return nil
}

func (s *PostgresStore) ListSignatures(ctx context.Context, documentID string) ([]model.Signature, error) {
	var sigs []model.Signature
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Order("signed_at ASC").Find(&sigs).Error; err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	return sigs, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, t *model.Task) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var t model.Task
	if err := s.query(ctx).Where("id = ?", id).Take(&t).Error; err != nil {
		return nil, notFound(err, "task", id)
	}
	return &t, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, t *model.Task) error {
	res := s.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", t.ID).Select("*").Updates(t)
	if res.Error != nil {
		return fmt.Errorf("update task %s: %w", t.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return workflow.NotFound("task", t.ID)
	}
	return nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, dealID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := s.db.WithContext(ctx).Where("deal_id = ?", dealID).Order("due_date ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
