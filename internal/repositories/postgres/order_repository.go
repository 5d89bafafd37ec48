package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	domain "github.com/aura-apparel/api/internal/domain"
	"github.com/aura-apparel/api/internal/platform/pagination"
	pg "github.com/aura-apparel/api/internal/platform/postgres"
	"github.com/aura-apparel/api/internal/repositories"
)

const orderColumns = `
	id, order_number, user_id, status, payment_status, currency,
	subtotal, discount, shipping, total,
	promo_code, payment_method, payment_order_ref, payment_id,
	ship_recipient, ship_line1, ship_line2, ship_city, ship_state, ship_postal_code, ship_country, ship_phone,
	created_at, updated_at, paid_at, cancelled_at`

// orderRow mirrors the orders table layout for explicit scanning.
type orderRow struct {
	ID              string
	OrderNumber     string
	UserID          string
	Status          string
	PaymentStatus   string
	Currency        string
	Subtotal        int64
	Discount        int64
	Shipping        int64
	Total           int64
	PromoCode       sql.NullString
	PaymentMethod   sql.NullString
	PaymentOrderRef sql.NullString
	PaymentID       sql.NullString
	ShipRecipient   string
	ShipLine1       string
	ShipLine2       sql.NullString
	ShipCity        string
	ShipState       sql.NullString
	ShipPostalCode  string
	ShipCountry     string
	ShipPhone       sql.NullString
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          sql.NullTime
	CancelledAt     sql.NullTime
}

type orderItemRow struct {
	ID        string
	OrderID   string
	ProductID string
	VariantID sql.NullString
	Title     string
	UnitPrice int64
	Quantity  int
	Size      sql.NullString
	Color     sql.NullString
	ImageURL  sql.NullString
	CreatedAt time.Time
}

// OrderRepository persists orders in Postgres.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository constructs an OrderRepository bound to the shared handle.
func NewOrderRepository(db *sql.DB) (*OrderRepository, error) {
	if db == nil {
		return nil, errors.New("postgres: database handle is required")
	}
	return &OrderRepository{db: db}, nil
}

// Insert writes the order header and all item snapshots. Callers wrap this in
// a unit of work when atomicity with other writes is required; the items here
// always share the ambient transaction with the header.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	run := func(ctx context.Context) error {
		q := pg.QuerierFromContext(ctx, r.db)

		const insertOrder = `
			INSERT INTO orders (` + orderColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

		row := orderToRow(order)
		if _, err := q.ExecContext(ctx, insertOrder,
			row.ID, row.OrderNumber, row.UserID, row.Status, row.PaymentStatus, row.Currency,
			row.Subtotal, row.Discount, row.Shipping, row.Total,
			row.PromoCode, row.PaymentMethod, row.PaymentOrderRef, row.PaymentID,
			row.ShipRecipient, row.ShipLine1, row.ShipLine2, row.ShipCity, row.ShipState,
			row.ShipPostalCode, row.ShipCountry, row.ShipPhone,
			row.CreatedAt, row.UpdatedAt, row.PaidAt, row.CancelledAt,
		); err != nil {
			return pg.WrapError("orders.insert", err)
		}

		const insertItem = `
			INSERT INTO order_items (id, order_id, product_id, variant_id, title, unit_price, quantity, size, color, image_url, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

		for _, item := range order.Items {
			if _, err := q.ExecContext(ctx, insertItem,
				item.ID, order.ID, item.ProductID, nullString(item.VariantID), item.Title,
				item.UnitPrice, item.Quantity, nullString(item.Size), nullString(item.Color),
				nullString(item.ImageURL), item.CreatedAt.UTC(),
			); err != nil {
				return pg.WrapError("orders.insert_item", err)
			}
		}
		return nil
	}

	// Header and items must land together even without an ambient transaction.
	if _, ok := pg.TxFromContext(ctx); ok {
		return run(ctx)
	}
	uow, err := pg.NewUnitOfWork(r.db)
	if err != nil {
		return err
	}
	return uow.RunInTx(ctx, run)
}

// FindByID loads a single order with its items.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, pg.NotFoundError("orders.find")
	}

	q := pg.QuerierFromContext(ctx, r.db)

	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	row, err := scanOrderRow(q.QueryRowContext(ctx, query, orderID))
	if err != nil {
		return domain.Order{}, pg.WrapError("orders.find", err)
	}

	order := rowToOrder(row)
	items, err := r.loadItems(ctx, q, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

// FindByPaymentOrderRef resolves the order associated with a gateway-side order reference.
func (r *OrderRepository) FindByPaymentOrderRef(ctx context.Context, provider, ref string) (domain.Order, error) {
	provider = strings.TrimSpace(provider)
	ref = strings.TrimSpace(ref)
	if provider == "" || ref == "" {
		return domain.Order{}, pg.NotFoundError("orders.find_by_ref")
	}

	q := pg.QuerierFromContext(ctx, r.db)

	const query = `SELECT ` + orderColumns + ` FROM orders WHERE payment_method = $1 AND payment_order_ref = $2`
	row, err := scanOrderRow(q.QueryRowContext(ctx, query, provider, ref))
	if err != nil {
		return domain.Order{}, pg.WrapError("orders.find_by_ref", err)
	}

	order := rowToOrder(row)
	items, err := r.loadItems(ctx, q, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

// ListByUser pages the user's orders newest-first by default using a keyset cursor.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, pg.NotFoundError("orders.list")
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	if pageSize > pagination.DefaultMaxPageSize {
		pageSize = pagination.DefaultMaxPageSize
	}

	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`)
	args = append(args, userID)

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query.WriteString(` AND status = $` + strconv.Itoa(len(args)))
	}

	if !filter.CursorCreatedAt.IsZero() && filter.CursorID != "" {
		args = append(args, filter.CursorCreatedAt.UTC(), filter.CursorID)
		if filter.SortAsc {
			query.WriteString(` AND (created_at, id) > ($` + strconv.Itoa(len(args)-1) + `, $` + strconv.Itoa(len(args)) + `)`)
		} else {
			query.WriteString(` AND (created_at, id) < ($` + strconv.Itoa(len(args)-1) + `, $` + strconv.Itoa(len(args)) + `)`)
		}
	}

	if filter.SortAsc {
		query.WriteString(` ORDER BY created_at ASC, id ASC`)
	} else {
		query.WriteString(` ORDER BY created_at DESC, id DESC`)
	}
	args = append(args, pageSize+1)
	query.WriteString(` LIMIT $` + strconv.Itoa(len(args)))

	q := pg.QuerierFromContext(ctx, r.db)
	rows, err := q.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pg.WrapError("orders.list", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, pageSize+1)
	for rows.Next() {
		row, err := scanOrderRows(rows)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pg.WrapError("orders.list", err)
		}
		orders = append(orders, rowToOrder(row))
	}
	if err := rows.Err(); err != nil {
		return domain.CursorPage[domain.Order]{}, pg.WrapError("orders.list", err)
	}

	page := domain.CursorPage[domain.Order]{}
	if len(orders) > pageSize {
		orders = orders[:pageSize]
		last := orders[len(orders)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	page.Items = orders

	if err := r.attachItems(ctx, q, page.Items); err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	return page, nil
}

// UpdateState applies a compare-and-swap transition from one joint state to another.
// A missing row surfaces as not-found; a row in a different state surfaces as conflict.
func (r *OrderRepository) UpdateState(ctx context.Context, orderID string, from, to domain.OrderState, update repositories.OrderStateUpdate) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, pg.NotFoundError("orders.update_state")
	}

	q := pg.QuerierFromContext(ctx, r.db)

	const cas = `
		UPDATE orders
		SET status = $4, payment_status = $5,
		    payment_id = COALESCE($6, payment_id),
		    paid_at = COALESCE($7, paid_at),
		    cancelled_at = COALESCE($8, cancelled_at),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2 AND payment_status = $3
		RETURNING ` + orderColumns

	row, err := scanOrderRow(q.QueryRowContext(ctx, cas,
		orderID, string(from.Status), string(from.Payment),
		string(to.Status), string(to.Payment),
		nullStringPtr(update.PaymentID), nullTimePtr(update.PaidAt), nullTimePtr(update.CancelledAt),
	))
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a vanished order from a lost transition race.
		const exists = `SELECT 1 FROM orders WHERE id = $1`
		var one int
		if scanErr := q.QueryRowContext(ctx, exists, orderID).Scan(&one); scanErr != nil {
			return domain.Order{}, pg.WrapError("orders.update_state", scanErr)
		}
		return domain.Order{}, pg.ConflictError("orders.update_state", errors.New("order not in expected state"))
	}
	if err != nil {
		return domain.Order{}, pg.WrapError("orders.update_state", err)
	}

	order := rowToOrder(row)
	items, err := r.loadItems(ctx, q, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

// SetPaymentOrderRef records the gateway-side order reference after session creation.
func (r *OrderRepository) SetPaymentOrderRef(ctx context.Context, orderID, provider, ref string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return pg.NotFoundError("orders.set_payment_ref")
	}

	q := pg.QuerierFromContext(ctx, r.db)

	const update = `
		UPDATE orders
		SET payment_method = $2, payment_order_ref = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := q.ExecContext(ctx, update, orderID, strings.TrimSpace(provider), strings.TrimSpace(ref))
	if err != nil {
		return pg.WrapError("orders.set_payment_ref", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return pg.WrapError("orders.set_payment_ref", err)
	}
	if affected == 0 {
		return pg.NotFoundError("orders.set_payment_ref")
	}
	return nil
}

func (r *OrderRepository) loadItems(ctx context.Context, q pg.Querier, orderID string) ([]domain.OrderItem, error) {
	const query = `
		SELECT id, order_id, product_id, variant_id, title, unit_price, quantity, size, color, image_url, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, pg.WrapError("orders.load_items", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0, 4)
	for rows.Next() {
		var row orderItemRow
		if err := rows.Scan(
			&row.ID, &row.OrderID, &row.ProductID, &row.VariantID, &row.Title,
			&row.UnitPrice, &row.Quantity, &row.Size, &row.Color, &row.ImageURL, &row.CreatedAt,
		); err != nil {
			return nil, pg.WrapError("orders.load_items", err)
		}
		items = append(items, domain.OrderItem{
			ID:        row.ID,
			OrderID:   row.OrderID,
			ProductID: row.ProductID,
			VariantID: row.VariantID.String,
			Title:     row.Title,
			UnitPrice: row.UnitPrice,
			Quantity:  row.Quantity,
			Size:      row.Size.String,
			Color:     row.Color.String,
			ImageURL:  row.ImageURL.String,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, pg.WrapError("orders.load_items", err)
	}
	return items, nil
}

func (r *OrderRepository) attachItems(ctx context.Context, q pg.Querier, orders []domain.Order) error {
	for i := range orders {
		items, err := r.loadItems(ctx, q, orders[i].ID)
		if err != nil {
			return err
		}
		orders[i].Items = items
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrderRow(row *sql.Row) (orderRow, error) {
	return scanOrderFields(row)
}

func scanOrderRows(rows *sql.Rows) (orderRow, error) {
	return scanOrderFields(rows)
}

func scanOrderFields(scanner rowScanner) (orderRow, error) {
	var row orderRow
	err := scanner.Scan(
		&row.ID, &row.OrderNumber, &row.UserID, &row.Status, &row.PaymentStatus, &row.Currency,
		&row.Subtotal, &row.Discount, &row.Shipping, &row.Total,
		&row.PromoCode, &row.PaymentMethod, &row.PaymentOrderRef, &row.PaymentID,
		&row.ShipRecipient, &row.ShipLine1, &row.ShipLine2, &row.ShipCity, &row.ShipState,
		&row.ShipPostalCode, &row.ShipCountry, &row.ShipPhone,
		&row.CreatedAt, &row.UpdatedAt, &row.PaidAt, &row.CancelledAt,
	)
	return row, err
}

func orderToRow(order domain.Order) orderRow {
	return orderRow{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		Status:          string(order.State.Status),
		PaymentStatus:   string(order.State.Payment),
		Currency:        order.Currency,
		Subtotal:        order.Totals.Subtotal,
		Discount:        order.Totals.Discount,
		Shipping:        order.Totals.Shipping,
		Total:           order.Totals.Total,
		PromoCode:       nullString(order.PromoCode),
		PaymentMethod:   nullString(order.PaymentMethod),
		PaymentOrderRef: nullString(order.PaymentOrderRef),
		PaymentID:       nullString(order.PaymentID),
		ShipRecipient:   order.ShippingAddress.Recipient,
		ShipLine1:       order.ShippingAddress.Line1,
		ShipLine2:       nullString(order.ShippingAddress.Line2),
		ShipCity:        order.ShippingAddress.City,
		ShipState:       nullString(order.ShippingAddress.State),
		ShipPostalCode:  order.ShippingAddress.PostalCode,
		ShipCountry:     order.ShippingAddress.Country,
		ShipPhone:       nullString(order.ShippingAddress.Phone),
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
		PaidAt:          nullTimePtr(order.PaidAt),
		CancelledAt:     nullTimePtr(order.CancelledAt),
	}
}

func rowToOrder(row orderRow) domain.Order {
	order := domain.Order{
		ID:          row.ID,
		OrderNumber: row.OrderNumber,
		UserID:      row.UserID,
		State: domain.OrderState{
			Status:  domain.OrderStatus(row.Status),
			Payment: domain.PaymentStatus(row.PaymentStatus),
		},
		Currency: row.Currency,
		Totals: domain.OrderTotals{
			Subtotal: row.Subtotal,
			Discount: row.Discount,
			Shipping: row.Shipping,
			Total:    row.Total,
		},
		PromoCode:       row.PromoCode.String,
		PaymentMethod:   row.PaymentMethod.String,
		PaymentOrderRef: row.PaymentOrderRef.String,
		PaymentID:       row.PaymentID.String,
		ShippingAddress: domain.Address{
			Recipient:  row.ShipRecipient,
			Line1:      row.ShipLine1,
			Line2:      row.ShipLine2.String,
			City:       row.ShipCity,
			State:      row.ShipState.String,
			PostalCode: row.ShipPostalCode,
			Country:    row.ShipCountry,
			Phone:      row.ShipPhone.String,
		},
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if row.PaidAt.Valid {
		paidAt := row.PaidAt.Time.UTC()
		order.PaidAt = &paidAt
	}
	if row.CancelledAt.Valid {
		cancelledAt := row.CancelledAt.Time.UTC()
		order.CancelledAt = &cancelledAt
	}
	return order
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}

func nullStringPtr(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return nullString(*value)
}

func nullTimePtr(value *time.Time) sql.NullTime {
	if value == nil || value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

