package dbserver

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp"
	"github.com/effective-security/mcpagent/pkg/llmutils"
)

type queryArgs struct {
	SQL string `json:"sql" jsonschema:"description=SELECT statement to run,required"`
}

type tableInfo struct {
	TableName   string `json:"table_name"`
	CreationSQL string `json:"creation_sql"`
}

type queryResult struct {
	SQL         string           `json:"sql"`
	Results     []map[string]any `json:"results"`
	ColumnNames []string         `json:"column_names"`
	RowCount    int              `json:"row_count"`
	ExecutedAt  string           `json:"executed_at"`
}

// RegisterTools attaches the database tools to the MCP server.
func RegisterTools(s *mcp.Server, db *sql.DB) error {
	err := mcp.RegisterTypedTool(s, "list_tables",
		"List every table in the database with its schema.",
		func(ctx context.Context, args struct{}) (*mcp.ToolResponse, error) {
			tables, err := listTables(ctx, db)
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResponse(mcp.NewTextContent(llmutils.ToJSONIndent(tables))), nil
		})
	if err != nil {
		return err
	}

	return mcp.RegisterTypedTool(s, "execute_safe_query",
		"Run a read-only SELECT query against the shop database.",
		func(ctx context.Context, args queryArgs) (*mcp.ToolResponse, error) {
			result, err := executeSafeQuery(ctx, db, args.SQL)
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResponse(mcp.NewTextContent(llmutils.ToJSONIndent(result))), nil
		})
}

func listTables(ctx context.Context, db *sql.DB) ([]tableInfo, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, sql
		FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to list tables")
	}
	defer rows.Close()

	tables := []tableInfo{}
	for rows.Next() {
		var t tableInfo
		if err := rows.Scan(&t.TableName, &t.CreationSQL); err != nil {
			return nil, errors.WithMessage(err, "failed to scan table row")
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func executeSafeQuery(ctx context.Context, db *sql.DB, query string) (*queryResult, error) {
	if err := ValidateSQL(query); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.WithMessage(err, "SQL error")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.WithMessage(err, "SQL error")
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.WithMessage(err, "SQL error")
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithMessage(err, "SQL error")
	}

	return &queryResult{
		SQL:         query,
		Results:     results,
		ColumnNames: columns,
		RowCount:    len(results),
		ExecutedAt:  time.Now().Format(time.RFC3339),
	}, nil
}
