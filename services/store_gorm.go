package services

import (
	"context"
	"errors"
	"time"

	"book-club-system/apperrors"
	"book-club-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on top of gorm. Open the database with
// TranslateError enabled so unique violations surface as gorm.ErrDuplicatedKey.
type GormStore struct {
	DB *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// AutoMigrate creates or updates every table the service owns.
func (s *GormStore) AutoMigrate() error {
	return s.DB.AutoMigrate(
		&models.User{},
		&models.Club{},
		&models.ClubMembership{},
		&models.MembershipRequest{},
		&models.Book{},
		&models.Notification{},
		&models.XPEvent{},
	)
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{DB: tx})
	})
}

func (s *GormStore) db(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NewNotFoundError(what + " not found")
	}
	return err
}

// --- progress ---

func (s *GormStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Level < 1 {
		user.Level = 1
	}
	err := s.db(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError("user already exists")
	}
	return err
}

func (s *GormStore) LockUsers(ctx context.Context, userIDs []string) ([]models.User, error) {
	var users []models.User
	if len(userIDs) == 0 {
		return users, nil
	}
	err := s.db(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", userIDs).
		Order("id").
		Find(&users).Error
	return users, err
}

func progressColumns(xp int64, level int, leveledUpAt *time.Time) map[string]interface{} {
	cols := map[string]interface{}{
		"xp":    xp,
		"level": level,
	}
	if leveledUpAt != nil {
		cols["last_level_up_at"] = *leveledUpAt
	}
	return cols
}

func (s *GormStore) CompareAndSetProgress(ctx context.Context, userID string, expectedXP, xp int64, level int, leveledUpAt *time.Time) (bool, error) {
	res := s.db(ctx).Model(&models.User{}).
		Where("id = ? AND xp = ?", userID, expectedXP).
		Updates(progressColumns(xp, level, leveledUpAt))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) SetProgress(ctx context.Context, userID string, xp int64, level int, leveledUpAt *time.Time) error {
	res := s.db(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(progressColumns(xp, level, leveledUpAt))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError("user not found")
	}
	return nil
}

func (s *GormStore) AppendXPEvents(ctx context.Context, events []models.XPEvent) error {
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		if events[i].ID == "" {
			events[i].ID = uuid.NewString()
		}
	}
	return s.db(ctx).Create(&events).Error
}

func (s *GormStore) ListXPEvents(ctx context.Context, userID string, offset, limit int) ([]models.XPEvent, int64, error) {
	var total int64
	if err := s.db(ctx).Model(&models.XPEvent{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var events []models.XPEvent
	err := s.db(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&events).Error
	return events, total, err
}

// --- clubs ---

func (s *GormStore) CreateClub(ctx context.Context, club *models.Club) error {
	if club.ID == "" {
		club.ID = uuid.NewString()
	}
	err := s.db(ctx).Omit(clause.Associations).Create(club).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError("club slug already taken")
	}
	return err
}

func (s *GormStore) GetClub(ctx context.Context, clubID string) (*models.Club, error) {
	var club models.Club
	if err := s.db(ctx).Where("id = ?", clubID).First(&club).Error; err != nil {
		return nil, notFound(err, "club")
	}
	return &club, nil
}

func (s *GormStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := s.db(ctx).Unscoped().Model(&models.Club{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

func (s *GormStore) UpdateClubCover(ctx context.Context, clubID, coverURL string) error {
	res := s.db(ctx).Model(&models.Club{}).Where("id = ?", clubID).Update("cover_url", coverURL)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError("club not found")
	}
	return nil
}

func (s *GormStore) ListMembers(ctx context.Context, clubID string) ([]models.ClubMembership, error) {
	var members []models.ClubMembership
	err := s.db(ctx).Where("club_id = ?", clubID).Order("joined_at ASC").Find(&members).Error
	return members, err
}

func (s *GormStore) GetMembership(ctx context.Context, clubID, userID string) (*models.ClubMembership, error) {
	var m models.ClubMembership
	if err := s.db(ctx).Where("club_id = ? AND user_id = ?", clubID, userID).First(&m).Error; err != nil {
		return nil, notFound(err, "membership")
	}
	return &m, nil
}

func (s *GormStore) CreateMembership(ctx context.Context, membership *models.ClubMembership) error {
	if membership.ID == "" {
		membership.ID = uuid.NewString()
	}
	err := s.db(ctx).Create(membership).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError("user is already a member of this club").WithCode(apperrors.CodeAlreadyMember)
	}
	return err
}

func (s *GormStore) UpdateMemberRole(ctx context.Context, clubID, userID string, role models.ClubRole) error {
	res := s.db(ctx).Model(&models.ClubMembership{}).
		Where("club_id = ? AND user_id = ?", clubID, userID).
		Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError("membership not found")
	}
	return nil
}

func (s *GormStore) CreateRequest(ctx context.Context, req *models.MembershipRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	err := s.db(ctx).Create(req).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError("a join request is already pending").WithCode(apperrors.CodeAlreadyRequested)
	}
	return err
}

func (s *GormStore) GetRequest(ctx context.Context, requestID string) (*models.MembershipRequest, error) {
	var req models.MembershipRequest
	if err := s.db(ctx).Where("id = ?", requestID).First(&req).Error; err != nil {
		return nil, notFound(err, "membership request")
	}
	return &req, nil
}

func (s *GormStore) FindPendingRequest(ctx context.Context, clubID, userID string) (*models.MembershipRequest, error) {
	var req models.MembershipRequest
	err := s.db(ctx).
		Where("club_id = ? AND user_id = ? AND state = ?", clubID, userID, models.RequestPending).
		First(&req).Error
	if err != nil {
		return nil, notFound(err, "membership request")
	}
	return &req, nil
}

func (s *GormStore) ListPendingRequests(ctx context.Context, clubID string) ([]models.MembershipRequest, error) {
	var reqs []models.MembershipRequest
	err := s.db(ctx).
		Where("club_id = ? AND state = ?", clubID, models.RequestPending).
		Order("created_at ASC").
		Find(&reqs).Error
	return reqs, err
}

func (s *GormStore) ResolveRequest(ctx context.Context, requestID string, state models.RequestState, resolvedBy string, at time.Time) (bool, error) {
	res := s.db(ctx).Model(&models.MembershipRequest{}).
		Where("id = ? AND state = ?", requestID, models.RequestPending).
		Updates(map[string]interface{}{
			"state":       state,
			"resolved_by": resolvedBy,
			"resolved_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) CreateBook(ctx context.Context, book *models.Book) error {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	return s.db(ctx).Create(book).Error
}

func (s *GormStore) GetBook(ctx context.Context, bookID string) (*models.Book, error) {
	var book models.Book
	if err := s.db(ctx).Where("id = ?", bookID).First(&book).Error; err != nil {
		return nil, notFound(err, "book")
	}
	return &book, nil
}

func (s *GormStore) FindBookByTitle(ctx context.Context, clubID, normalizedTitle string) (*models.Book, error) {
	var book models.Book
	err := s.db(ctx).
		Where("club_id = ? AND normalized_title = ?", clubID, normalizedTitle).
		First(&book).Error
	if err != nil {
		return nil, notFound(err, "book")
	}
	return &book, nil
}

func (s *GormStore) UpdateBookStatus(ctx context.Context, bookID string, from, to models.BookStatus) (bool, error) {
	res := s.db(ctx).Model(&models.Book{}).
		Where("id = ? AND status = ?", bookID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// --- notifications ---

func (s *GormStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return s.db(ctx).Create(n).Error
}

func (s *GormStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	q := s.db(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	var out []models.Notification
	err := q.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (s *GormStore) MarkNotificationRead(ctx context.Context, userID, notificationID string, at time.Time) error {
	res := s.db(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Updates(map[string]interface{}{"read": true, "read_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError("notification not found")
	}
	return nil
}

func (s *GormStore) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res := s.db(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Updates(map[string]interface{}{"read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

func (s *GormStore) PurgeReadNotifications(ctx context.Context, readBefore time.Time) (int64, error) {
	res := s.db(ctx).
		Where("read = ? AND read_at < ?", true, readBefore).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
