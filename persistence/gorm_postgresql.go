// persistence/gorm_postgresql.go
package persistence

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/gametrack/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	// TranslateError 把驱动错误翻译成gorm.ErrDuplicatedKey等哨兵错误
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormUser{},
		&models.GormGame{},
		&models.GormMessage{},
		&models.GormUserGame{},
	)
}

// --- Games ---

func (p *GormPostgreSQL) CreateGame(game models.Game, cover models.Cover) error {
	row := models.GormGame{
		ID:          game.ID,
		Name:        game.Name,
		Genre:       game.Genre,
		ReleaseDate: game.ReleaseDate,
		Description: game.Description,
		Cover:       cover.Data,
		CoverType:   cover.ContentType,
		AddedBy:     game.AddedBy,
	}
	return p.db.Create(&row).Error
}

func (p *GormPostgreSQL) GetGame(id string) (models.Game, error) {
	var row models.GormGame
	if err := p.db.Select("id", "name", "genre", "release_date", "description", "added_by").
		Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Game{}, ErrRecordNotFound
		}
		return models.Game{}, err
	}
	return row.Domain(), nil
}

func (p *GormPostgreSQL) GetGameCover(id string) (models.Cover, error) {
	var row models.GormGame
	if err := p.db.Select("cover", "cover_type").Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Cover{}, ErrRecordNotFound
		}
		return models.Cover{}, err
	}
	if len(row.Cover) == 0 {
		return models.Cover{}, ErrRecordNotFound
	}
	return models.Cover{Data: row.Cover, ContentType: row.CoverType}, nil
}

func (p *GormPostgreSQL) ListGames(filter GameFilter) ([]models.Game, error) {
	q := p.db.Model(&models.GormGame{}).
		Select("id", "name", "genre", "release_date", "description", "added_by")
	if filter.NameContains != "" {
		q = q.Where("name ILIKE ?", "%"+filter.NameContains+"%")
	}
	switch filter.Sort {
	case SortNameDesc:
		q = q.Order("LOWER(name) DESC")
	case SortReleaseDateAsc:
		q = q.Order("release_date ASC")
	case SortReleaseDateDesc:
		q = q.Order("release_date DESC")
	default:
		q = q.Order("LOWER(name) ASC")
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []models.GormGame
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	games := make([]models.Game, 0, len(rows))
	for i := range rows {
		games = append(games, rows[i].Domain())
	}
	return games, nil
}

func (p *GormPostgreSQL) ListGamesByUser(userID string) ([]models.Game, error) {
	var rows []models.GormGame
	err := p.db.Model(&models.GormGame{}).
		Select("id", "name", "genre", "release_date", "description", "added_by").
		Where("added_by = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	games := make([]models.Game, 0, len(rows))
	for i := range rows {
		games = append(games, rows[i].Domain())
	}
	return games, nil
}

func (p *GormPostgreSQL) CountGames(nameContains string) (int64, error) {
	q := p.db.Model(&models.GormGame{})
	if nameContains != "" {
		q = q.Where("name ILIKE ?", "%"+nameContains+"%")
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}

// --- Messages ---

func (p *GormPostgreSQL) SaveMessage(msg models.Message) error {
	row := models.GormMessage{
		ID:        msg.ID,
		GameID:    msg.GameID,
		Sender:    msg.Sender,
		Body:      msg.Body,
		Timestamp: msg.Timestamp,
	}
	return p.db.Create(&row).Error
}

func (p *GormPostgreSQL) MessagesByGame(gameID string, limit int) ([]models.Message, error) {
	q := p.db.Where("game_id = ?", gameID).Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.GormMessage
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, rows[i].Domain())
	}
	return msgs, nil
}

// --- Users ---

func (p *GormPostgreSQL) CreateUser(user models.User) error {
	row := models.GormUser{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Description:  user.Description,
	}
	if err := p.db.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (p *GormPostgreSQL) GetUser(id string) (models.User, error) {
	var row models.GormUser
	if err := p.db.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrRecordNotFound
		}
		return models.User{}, err
	}
	return row.Domain(), nil
}

func (p *GormPostgreSQL) GetUserByUsername(username string) (models.User, error) {
	var row models.GormUser
	if err := p.db.Where("username = ?", username).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrRecordNotFound
		}
		return models.User{}, err
	}
	return row.Domain(), nil
}

func (p *GormPostgreSQL) UpdateUser(user models.User) error {
	result := p.db.Model(&models.GormUser{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"username":    user.Username,
		"description": user.Description,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *GormPostgreSQL) SetUserAvatar(id string, avatar models.Cover) error {
	result := p.db.Model(&models.GormUser{}).Where("id = ?", id).Updates(map[string]interface{}{
		"avatar":      avatar.Data,
		"avatar_type": avatar.ContentType,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *GormPostgreSQL) GetUserAvatar(id string) (models.Cover, error) {
	var row models.GormUser
	if err := p.db.Select("avatar", "avatar_type").Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Cover{}, ErrRecordNotFound
		}
		return models.Cover{}, err
	}
	if len(row.Avatar) == 0 {
		return models.Cover{}, ErrRecordNotFound
	}
	return models.Cover{Data: row.Avatar, ContentType: row.AvatarType}, nil
}

func (p *GormPostgreSQL) DeleteUser(id string) error {
	// 删除账号时级联删除用户的游戏关联
	return p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.GormUserGame{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.GormUser{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
}

// --- User-game associations ---

func (p *GormPostgreSQL) UpsertUserGame(assoc models.UserGame) error {
	var row models.GormUserGame
	result := p.db.Where("user_id = ? AND game_id = ?", assoc.UserID, assoc.GameID).First(&row)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		row = models.GormUserGame{
			UserID: assoc.UserID,
			GameID: assoc.GameID,
			Status: string(assoc.Status),
			Rating: assoc.Rating,
		}
		return p.db.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.Status = string(assoc.Status)
	row.Rating = assoc.Rating
	row.UpdatedAt = time.Now()
	return p.db.Save(&row).Error
}

func (p *GormPostgreSQL) GetUserGame(userID, gameID string) (models.UserGame, error) {
	var row models.GormUserGame
	if err := p.db.Where("user_id = ? AND game_id = ?", userID, gameID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.UserGame{}, ErrRecordNotFound
		}
		return models.UserGame{}, err
	}
	return row.Domain(), nil
}

func (p *GormPostgreSQL) DeleteUserGame(userID, gameID string) error {
	result := p.db.Where("user_id = ? AND game_id = ?", userID, gameID).Delete(&models.GormUserGame{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *GormPostgreSQL) ListUserGames(userID string) ([]models.LibraryEntry, error) {
	var rows []models.GormUserGame
	if err := p.db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]models.LibraryEntry, 0, len(rows))
	for i := range rows {
		game, err := p.GetGame(rows[i].GameID)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		entries = append(entries, models.LibraryEntry{
			Game:   game,
			Status: models.LibraryStatus(rows[i].Status),
			Rating: rows[i].Rating,
		})
	}
	return entries, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
