package db

import (
	"context"
	"fmt"
)

// CreateRole は新しいロールを作成する。
func (q *Queries) CreateRole(ctx context.Context, name, description string) (Role, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO roles (name, description) VALUES (?, ?)`, name, description)
	if err != nil {
		return Role{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Role{}, fmt.Errorf("挿入したロールIDの取得に失敗: %w", err)
	}
	return Role{ID: id, Name: name, Description: description}, nil
}

// AssignRole はユーザーにロールを付与する。付与済みの場合は何もしない。
func (q *Queries) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO roles_users (user_id, role_id) VALUES (?, ?)`,
		userID, roleID)
	return err
}

// UserHasRole はユーザーが指定された名前のロールを持つかどうかを返す。
// ロール名文字列との等価比較ではなく、所属関係の判定として実装する。
func (q *Queries) UserHasRole(ctx context.Context, userUID, roleName string) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM roles_users ru
		JOIN roles r ON r.id = ru.role_id
		JOIN users u ON u.id = ru.user_id
		WHERE u.uid = ? AND r.name = ?`, userUID, roleName).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListUserRoles はユーザーが持つロール名の一覧を返す。
func (q *Queries) ListUserRoles(ctx context.Context, userUID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT r.name FROM roles_users ru
		JOIN roles r ON r.id = ru.role_id
		JOIN users u ON u.id = ru.user_id
		WHERE u.uid = ? ORDER BY r.name`, userUID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
