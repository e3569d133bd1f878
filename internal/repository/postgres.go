// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/vaxledger-system/internal/eligibility"
	"github.com/mmeshcher/vaxledger-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrPurchaseNotFound возвращается, если закупка с указанным идентификатором не найдена.
var (
	ErrPurchaseNotFound = errors.New("purchase not found")
	// ErrPurchaseInactive возвращается при попытке изменить деактивированную закупку.
	ErrPurchaseInactive = errors.New("purchase is inactive")
	// ErrOverpayment возвращается, если платёж превышает остаток к оплате по закупке.
	ErrOverpayment = errors.New("payment exceeds remaining balance")
	// ErrDoseConflict сигнализирует о нарушении инварианта счётчика доз внутри транзакции.
	// Под блокировкой строки такого происходить не должно: это признак ошибки в логике.
	ErrDoseConflict = errors.New("dose counter conflict")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Повторяем только конфликты сериализации и дедлоки: каждая попытка —
		// целая транзакция, поэтому повтор безопасен.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		// Если это не pg-ошибка, но сетевая
		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreatePurchase сохраняет новую закупку с зафиксированными ценой и партией вакцины.
func (r *PostgresRepository) CreatePurchase(ctx context.Context, p *model.Purchase) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO purchases
		   (id, patient_id, vaccine_id, vaccine_name, batch_number,
		    price_per_dose, total_doses, total_price, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		p.ID, p.PatientID, p.VaccineID, p.VaccineName, p.BatchNumber,
		p.PricePerDose, p.TotalDoses, p.TotalPrice, p.CreatedBy,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}

	p.AmountPaid = 0
	p.DosesAdministered = 0
	p.IsActive = true

	return nil
}

const purchaseColumns = `id, patient_id, vaccine_id, vaccine_name, batch_number,
	price_per_dose, total_doses, total_price, amount_paid, doses_administered,
	is_active, created_by, created_at`

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	var p model.Purchase
	err := row.Scan(
		&p.ID, &p.PatientID, &p.VaccineID, &p.VaccineName, &p.BatchNumber,
		&p.PricePerDose, &p.TotalDoses, &p.TotalPrice, &p.AmountPaid,
		&p.DosesAdministered, &p.IsActive, &p.CreatedBy, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("scan purchase: %w", err)
	}
	return &p, nil
}

// GetPurchase возвращает закупку по идентификатору.
func (r *PostgresRepository) GetPurchase(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`,
		purchaseID,
	)
	return scanPurchase(row)
}

// GetPurchasesByPatient возвращает список закупок пациента, новые первыми.
func (r *PostgresRepository) GetPurchasesByPatient(ctx context.Context, patientID string) ([]model.Purchase, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+purchaseColumns+`
		 FROM purchases
		 WHERE patient_id = $1
		 ORDER BY created_at DESC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("select purchases: %w", err)
	}
	defer rows.Close()

	var res []model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreatePayment сохраняет платёж и продвигает сумму оплаты по закупке в одной
// транзакции. Строка закупки блокируется для сериализации конкурентных платежей:
// переплата сверх остатка отклоняется по зафиксированному состоянию, а не по
// возможно устаревшей копии вызывающей стороны.
func (r *PostgresRepository) CreatePayment(ctx context.Context, pmt *model.Payment) error {
	return r.withRetry(ctx, func() error {
		return r.createPayment(ctx, pmt)
	})
}

func (r *PostgresRepository) createPayment(ctx context.Context, pmt *model.Payment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		totalPrice int64
		amountPaid int64
		isActive   bool
	)
	err = tx.QueryRow(ctx,
		`SELECT total_price, amount_paid, is_active
		 FROM purchases
		 WHERE id = $1
		 FOR UPDATE`,
		pmt.PurchaseID,
	).Scan(&totalPrice, &amountPaid, &isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPurchaseNotFound
		}
		return fmt.Errorf("lock purchase for update: %w", err)
	}

	if !isActive {
		return ErrPurchaseInactive
	}

	if amountPaid+pmt.Amount > totalPrice {
		return ErrOverpayment
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO payments
		   (id, purchase_id, amount, payment_date, method, reference_number, notes, received_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		pmt.ID, pmt.PurchaseID, pmt.Amount, pmt.PaymentDate,
		string(pmt.Method), pmt.ReferenceNumber, pmt.Notes, pmt.ReceivedBy,
	).Scan(&pmt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE purchases SET amount_paid = amount_paid + $2 WHERE id = $1`,
		pmt.PurchaseID, pmt.Amount,
	)
	if err != nil {
		return fmt.Errorf("update amount paid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetPaymentsByPurchase возвращает историю платежей по закупке в порядке создания.
func (r *PostgresRepository) GetPaymentsByPurchase(ctx context.Context, purchaseID string) ([]model.Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, purchase_id, amount, payment_date, method,
		        reference_number, notes, received_by, created_at
		 FROM payments
		 WHERE purchase_id = $1
		 ORDER BY created_at`,
		purchaseID,
	)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	var res []model.Payment
	for rows.Next() {
		var (
			pmt    model.Payment
			method string
		)
		if err := rows.Scan(
			&pmt.ID, &pmt.PurchaseID, &pmt.Amount, &pmt.PaymentDate, &method,
			&pmt.ReferenceNumber, &pmt.Notes, &pmt.ReceivedBy, &pmt.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		pmt.Method = model.PaymentMethod(method)
		res = append(res, pmt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateVaccination регистрирует введение дозы. Проверка права на дозу и
// продвижение счётчика выполняются в одной транзакции под блокировкой строки
// закупки: два конкурентных запроса не могут пройти проверку по одному и тому
// же числу оплаченных доз. Номер дозы и снимок полей вакцины записываются в v.
func (r *PostgresRepository) CreateVaccination(ctx context.Context, v *model.Vaccination) error {
	return r.withRetry(ctx, func() error {
		return r.createVaccination(ctx, v)
	})
}

func (r *PostgresRepository) createVaccination(ctx context.Context, v *model.Vaccination) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := scanPurchase(tx.QueryRow(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = $1 FOR UPDATE`,
		v.PurchaseID,
	))
	if err != nil {
		return err
	}

	res := eligibility.Check(p)
	if !res.Eligible {
		return &eligibility.IneligibleError{Reason: res.Message}
	}

	v.PatientID = p.PatientID
	v.DoseNumber = res.NextDoseNumber
	v.VaccineName = p.VaccineName
	v.BatchNumber = p.BatchNumber
	v.PricePerDose = p.PricePerDose

	err = tx.QueryRow(ctx,
		`INSERT INTO vaccinations
		   (id, purchase_id, patient_id, dose_number, dose_date,
		    administered_by, notes, vaccine_name, batch_number, price_per_dose)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		v.ID, v.PurchaseID, v.PatientID, v.DoseNumber, v.DoseDate,
		v.AdministeredBy, v.Notes, v.VaccineName, v.BatchNumber, v.PricePerDose,
	).Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert vaccination: %w", err)
	}

	// Повторная страховочная проверка предусловий прямо в условии UPDATE.
	cmdTag, err := tx.Exec(ctx,
		`UPDATE purchases
		 SET doses_administered = doses_administered + 1
		 WHERE id = $1
		   AND doses_administered = $2
		   AND doses_administered < total_doses`,
		v.PurchaseID, p.DosesAdministered,
	)
	if err != nil {
		return fmt.Errorf("update doses administered: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrDoseConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetVaccinationsByPurchase возвращает введённые дозы по закупке в порядке номеров доз.
func (r *PostgresRepository) GetVaccinationsByPurchase(ctx context.Context, purchaseID string) ([]model.Vaccination, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, purchase_id, patient_id, dose_number, dose_date,
		        administered_by, notes, vaccine_name, batch_number, price_per_dose, created_at
		 FROM vaccinations
		 WHERE purchase_id = $1
		 ORDER BY dose_number`,
		purchaseID,
	)
	if err != nil {
		return nil, fmt.Errorf("select vaccinations: %w", err)
	}
	defer rows.Close()

	var res []model.Vaccination
	for rows.Next() {
		var vac model.Vaccination
		if err := rows.Scan(
			&vac.ID, &vac.PurchaseID, &vac.PatientID, &vac.DoseNumber, &vac.DoseDate,
			&vac.AdministeredBy, &vac.Notes, &vac.VaccineName, &vac.BatchNumber,
			&vac.PricePerDose, &vac.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan vaccination: %w", err)
		}
		res = append(res, vac)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeactivatePurchase помечает закупку неактивной. Запись не удаляется.
func (r *PostgresRepository) DeactivatePurchase(ctx context.Context, purchaseID string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE purchases SET is_active = FALSE WHERE id = $1`,
		purchaseID,
	)
	if err != nil {
		return fmt.Errorf("deactivate purchase: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}

// GetStats возвращает сводные показатели реестра в минимальных денежных единицах.
func (r *PostgresRepository) GetStats(ctx context.Context) (*model.Stats, error) {
	var s model.Stats

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE is_active),
		        COALESCE(SUM(amount_paid), 0),
		        COALESCE(SUM(total_price - amount_paid) FILTER (WHERE is_active), 0),
		        COALESCE(SUM(doses_administered), 0)
		 FROM purchases`,
	).Scan(&s.ActivePurchases, &s.CollectedTotal, &s.OutstandingTotal, &s.DosesAdministered)
	if err != nil {
		return nil, fmt.Errorf("select stats: %w", err)
	}

	return &s, nil
}
