// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wfunc/gametrack/models"
)

// isUniqueViolation 判断是否违反唯一约束（PostgreSQL错误码23505）
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// PostgreSQL 数据库实现（原生SQL）
type PostgreSQL struct {
	db *sql.DB
}

const queryTimeout = 5 * time.Second

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS users (
            id VARCHAR(36) PRIMARY KEY,
            username VARCHAR(255) UNIQUE NOT NULL,
            password_hash VARCHAR(255) NOT NULL,
            description TEXT DEFAULT 'No description provided',
            avatar BYTEA,
            avatar_type VARCHAR(100),
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS games (
            id VARCHAR(36) PRIMARY KEY,
            name VARCHAR(255) NOT NULL,
            genre VARCHAR(100) NOT NULL,
            release_date TIMESTAMP NOT NULL,
            description TEXT NOT NULL,
            cover BYTEA NOT NULL,
            cover_type VARCHAR(100) NOT NULL,
            added_by VARCHAR(36) NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS messages (
            id VARCHAR(36) PRIMARY KEY,
            game_id VARCHAR(36) NOT NULL,
            sender VARCHAR(255) NOT NULL,
            body TEXT NOT NULL,
            timestamp TIMESTAMP NOT NULL
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS user_games (
            id SERIAL PRIMARY KEY,
            user_id VARCHAR(36) NOT NULL,
            game_id VARCHAR(36) NOT NULL,
            status VARCHAR(20) NOT NULL,
            rating INT DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (user_id, game_id)
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.Exec(`
        CREATE INDEX IF NOT EXISTS idx_games_name ON games(name);
        CREATE INDEX IF NOT EXISTS idx_games_release_date ON games(release_date);
        CREATE INDEX IF NOT EXISTS idx_messages_game_id ON messages(game_id);
        CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
        CREATE INDEX IF NOT EXISTS idx_user_games_user_id ON user_games(user_id);
    `)

	return err
}

// --- Games ---

func (p *PostgreSQL) CreateGame(game models.Game, cover models.Cover) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := `
        INSERT INTO games (id, name, genre, release_date, description, cover, cover_type, added_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err := p.db.ExecContext(ctx, query,
		game.ID, game.Name, game.Genre, game.ReleaseDate, game.Description,
		cover.Data, cover.ContentType, game.AddedBy)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *PostgreSQL) GetGame(id string) (models.Game, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var game models.Game
	query := `SELECT id, name, genre, release_date, description, added_by FROM games WHERE id = $1`
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&game.ID, &game.Name, &game.Genre, &game.ReleaseDate, &game.Description, &game.AddedBy)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Game{}, ErrRecordNotFound
		}
		return models.Game{}, err
	}
	return game, nil
}

func (p *PostgreSQL) GetGameCover(id string) (models.Cover, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var cover models.Cover
	query := `SELECT cover, cover_type FROM games WHERE id = $1`
	err := p.db.QueryRowContext(ctx, query, id).Scan(&cover.Data, &cover.ContentType)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Cover{}, ErrRecordNotFound
		}
		return models.Cover{}, err
	}
	if len(cover.Data) == 0 {
		return models.Cover{}, ErrRecordNotFound
	}
	return cover, nil
}

func sortClause(sort GameSort) string {
	switch sort {
	case SortNameDesc:
		return "LOWER(name) DESC"
	case SortReleaseDateAsc:
		return "release_date ASC"
	case SortReleaseDateDesc:
		return "release_date DESC"
	default:
		return "LOWER(name) ASC"
	}
}

func (p *PostgreSQL) ListGames(filter GameFilter) ([]models.Game, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := fmt.Sprintf(`
        SELECT id, name, genre, release_date, description, added_by
        FROM games
        WHERE ($1 = '' OR name ILIKE '%%' || $1 || '%%')
        ORDER BY %s
        OFFSET $2
    `, sortClause(filter.Sort))

	var rows *sql.Rows
	var err error
	if filter.Limit > 0 {
		rows, err = p.db.QueryContext(ctx, query+" LIMIT $3", filter.NameContains, filter.Offset, filter.Limit)
	} else {
		rows, err = p.db.QueryContext(ctx, query, filter.NameContains, filter.Offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []models.Game
	for rows.Next() {
		var g models.Game
		if err := rows.Scan(&g.ID, &g.Name, &g.Genre, &g.ReleaseDate, &g.Description, &g.AddedBy); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func (p *PostgreSQL) ListGamesByUser(userID string) ([]models.Game, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := `
        SELECT id, name, genre, release_date, description, added_by
        FROM games WHERE added_by = $1
        ORDER BY created_at ASC
    `
	rows, err := p.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []models.Game
	for rows.Next() {
		var g models.Game
		if err := rows.Scan(&g.ID, &g.Name, &g.Genre, &g.ReleaseDate, &g.Description, &g.AddedBy); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func (p *PostgreSQL) CountGames(nameContains string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var count int64
	query := `SELECT COUNT(*) FROM games WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')`
	err := p.db.QueryRowContext(ctx, query, nameContains).Scan(&count)
	return count, err
}

// --- Messages ---

func (p *PostgreSQL) SaveMessage(msg models.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := `INSERT INTO messages (id, game_id, sender, body, timestamp) VALUES ($1, $2, $3, $4, $5)`
	_, err := p.db.ExecContext(ctx, query, msg.ID, msg.GameID, msg.Sender, msg.Body, msg.Timestamp)
	return err
}

func (p *PostgreSQL) MessagesByGame(gameID string, limit int) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := `
        SELECT id, game_id, sender, body, timestamp
        FROM messages WHERE game_id = $1
        ORDER BY timestamp DESC
    `
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = p.db.QueryContext(ctx, query+" LIMIT $2", gameID, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, query, gameID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.GameID, &m.Sender, &m.Body, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// --- Users ---

func (p *PostgreSQL) CreateUser(user models.User) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := `INSERT INTO users (id, username, password_hash, description) VALUES ($1, $2, $3, $4)`
	_, err := p.db.ExecContext(ctx, query, user.ID, user.Username, user.PasswordHash, user.Description)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *PostgreSQL) GetUser(id string) (models.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var u models.User
	query := `SELECT id, username, password_hash, description FROM users WHERE id = $1`
	err := p.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Description)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.User{}, ErrRecordNotFound
		}
		return models.User{}, err
	}
	return u, nil
}

func (p *PostgreSQL) GetUserByUsername(username string) (models.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var u models.User
	query := `SELECT id, username, password_hash, description FROM users WHERE username = $1`
	err := p.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Description)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.User{}, ErrRecordNotFound
		}
		return models.User{}, err
	}
	return u, nil
}

func (p *PostgreSQL) UpdateUser(user models.User) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := `UPDATE users SET username = $2, description = $3, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	result, err := p.db.ExecContext(ctx, query, user.ID, user.Username, user.Description)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

func (p *PostgreSQL) SetUserAvatar(id string, avatar models.Cover) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := `UPDATE users SET avatar = $2, avatar_type = $3, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	result, err := p.db.ExecContext(ctx, query, id, avatar.Data, avatar.ContentType)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

func (p *PostgreSQL) GetUserAvatar(id string) (models.Cover, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var cover models.Cover
	var data []byte
	var contentType sql.NullString
	query := `SELECT avatar, avatar_type FROM users WHERE id = $1`
	err := p.db.QueryRowContext(ctx, query, id).Scan(&data, &contentType)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Cover{}, ErrRecordNotFound
		}
		return models.Cover{}, err
	}
	if len(data) == 0 {
		return models.Cover{}, ErrRecordNotFound
	}
	cover.Data = data
	cover.ContentType = contentType.String
	return cover, nil
}

func (p *PostgreSQL) DeleteUser(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_games WHERE user_id = $1`, id); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if err := checkAffected(result); err != nil {
		return err
	}
	return tx.Commit()
}

// --- User-game associations ---

func (p *PostgreSQL) UpsertUserGame(assoc models.UserGame) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	// 使用 UPSERT 操作 (PostgreSQL 9.5+)
	query := `
        INSERT INTO user_games (user_id, game_id, status, rating)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, game_id)
        DO UPDATE SET status = $3, rating = $4, updated_at = CURRENT_TIMESTAMP
    `
	_, err := p.db.ExecContext(ctx, query, assoc.UserID, assoc.GameID, string(assoc.Status), assoc.Rating)
	return err
}

func (p *PostgreSQL) GetUserGame(userID, gameID string) (models.UserGame, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var assoc models.UserGame
	var status string
	query := `SELECT user_id, game_id, status, rating FROM user_games WHERE user_id = $1 AND game_id = $2`
	err := p.db.QueryRowContext(ctx, query, userID, gameID).Scan(&assoc.UserID, &assoc.GameID, &status, &assoc.Rating)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.UserGame{}, ErrRecordNotFound
		}
		return models.UserGame{}, err
	}
	assoc.Status = models.LibraryStatus(status)
	return assoc, nil
}

func (p *PostgreSQL) DeleteUserGame(userID, gameID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	result, err := p.db.ExecContext(ctx,
		`DELETE FROM user_games WHERE user_id = $1 AND game_id = $2`, userID, gameID)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

func (p *PostgreSQL) ListUserGames(userID string) ([]models.LibraryEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := `
        SELECT g.id, g.name, g.genre, g.release_date, g.description, g.added_by, ug.status, ug.rating
        FROM user_games ug
        JOIN games g ON g.id = ug.game_id
        WHERE ug.user_id = $1
        ORDER BY ug.created_at ASC
    `
	rows, err := p.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LibraryEntry
	for rows.Next() {
		var e models.LibraryEntry
		var status string
		if err := rows.Scan(&e.Game.ID, &e.Game.Name, &e.Game.Genre, &e.Game.ReleaseDate,
			&e.Game.Description, &e.Game.AddedBy, &status, &e.Rating); err != nil {
			return nil, err
		}
		e.Status = models.LibraryStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func checkAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
