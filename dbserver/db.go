// Package dbserver is a sample tool server exposing a small shop
// database over two tools: list_tables and execute_safe_query.
package dbserver

import (
	"database/sql"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	price INTEGER NOT NULL CHECK(price > 0),
	stock INTEGER NOT NULL CHECK(stock >= 0),
	category TEXT NOT NULL,
	description TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS customers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	email TEXT UNIQUE,
	phone TEXT,
	address TEXT,
	customer_type TEXT CHECK(customer_type IN ('individual', 'business')),
	registration_date DATE DEFAULT (date('now')),
	total_purchases INTEGER DEFAULT 0,
	last_purchase_date DATE
);

CREATE TABLE IF NOT EXISTS sales (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id INTEGER NOT NULL,
	quantity INTEGER NOT NULL CHECK(quantity > 0),
	unit_price INTEGER NOT NULL CHECK(unit_price > 0),
	total_amount INTEGER NOT NULL CHECK(total_amount > 0),
	sale_date DATE NOT NULL,
	customer_id INTEGER NOT NULL,
	sales_person TEXT,
	notes TEXT,
	FOREIGN KEY (product_id) REFERENCES products (id),
	FOREIGN KEY (customer_id) REFERENCES customers (id)
);
`

// Open opens the SQLite database at path, creating it when missing.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to open database %q", path)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, errors.WithMessage(err, "failed to enable foreign keys")
	}
	return db, nil
}

const (
	sampleProducts  = 10
	sampleCustomers = 5
	sampleSales     = 100
)

var productCategories = []string{"smartphone", "laptop", "tablet", "audio", "wearable", "accessory"}

// Seed creates the schema and fills it with generated sample data. The
// seed fixes the generated content, so repeated runs produce the same
// shop.
func Seed(db *sql.DB, seed uint64) error {
	if _, err := db.Exec(schema); err != nil {
		return errors.WithMessage(err, "failed to create schema")
	}

	f := gofakeit.New(seed)

	for i := 0; i < sampleProducts; i++ {
		_, err := db.Exec(`
			INSERT OR IGNORE INTO products (name, price, stock, category, description)
			VALUES (?, ?, ?, ?, ?)`,
			f.ProductName(),
			f.Number(1980, 259800),
			f.Number(0, 30),
			f.RandomString(productCategories),
			f.ProductDescription(),
		)
		if err != nil {
			return errors.WithMessage(err, "failed to insert product")
		}
	}

	for i := 0; i < sampleCustomers; i++ {
		kind := "individual"
		name := f.Name()
		if f.Bool() {
			kind = "business"
			name = f.Company()
		}
		_, err := db.Exec(`
			INSERT OR IGNORE INTO customers (name, email, phone, address, customer_type)
			VALUES (?, ?, ?, ?, ?)`,
			name,
			f.Email(),
			f.Phone(),
			f.Address().Address,
			kind,
		)
		if err != nil {
			return errors.WithMessage(err, "failed to insert customer")
		}
	}

	now := time.Now()
	for i := 0; i < sampleSales; i++ {
		productID := f.Number(1, sampleProducts)

		var unitPrice int
		if err := db.QueryRow("SELECT price FROM products WHERE id = ?", productID).Scan(&unitPrice); err != nil {
			return errors.WithMessage(err, "failed to look up product price")
		}

		quantity := f.Number(1, 5)
		saleDate := now.AddDate(0, 0, -f.Number(0, 90)).Format("2006-01-02")

		_, err := db.Exec(`
			INSERT INTO sales
			(product_id, customer_id, quantity, unit_price, total_amount, sale_date, sales_person, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
			productID,
			f.Number(1, sampleCustomers),
			quantity,
			unitPrice,
			unitPrice*quantity,
			saleDate,
			f.FirstName(),
		)
		if err != nil {
			return errors.WithMessage(err, "failed to insert sale")
		}
	}

	return nil
}
