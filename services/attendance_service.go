package services

import (
	"context"
	"fmt"
	"time"

	"schoolpulse_go/config"
	"schoolpulse_go/models"
	"schoolpulse_go/services/notifications"
	"schoolpulse_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AttendanceService records daily attendance and keeps each teacher's
// attendance rate current.
type AttendanceService struct {
	db     *gorm.DB
	notify *notifications.Service
	cfg    *config.Config
	now    func() time.Time
}

func NewAttendanceService(db *gorm.DB, notify *notifications.Service, cfg *config.Config) *AttendanceService {
	return &AttendanceService{db: db, notify: notify, cfg: cfg, now: time.Now}
}

// AttendanceSummary counts records per status over a period.
type AttendanceSummary struct {
	Present int     `json:"present"`
	Absent  int     `json:"absent"`
	Late    int     `json:"late"`
	HalfDay int     `json:"half_day"`
	Total   int     `json:"total"`
	Rate    float64 `json:"rate"`
}

// AttendanceRate is (present + late + half of half-days) over all days, as a
// percentage with one decimal.
func AttendanceRate(present, late, halfDay, total int) float64 {
	if total == 0 {
		return 0
	}
	return utils.Round1((float64(present+late) + 0.5*float64(halfDay)) / float64(total) * 100)
}

func (s AttendanceSummary) withRate() AttendanceSummary {
	s.Rate = AttendanceRate(s.Present, s.Late, s.HalfDay, s.Total)
	return s
}

// lateAfter is the latest on-time check-in for the day of t.
func (s *AttendanceService) lateAfter(t time.Time) time.Time {
	start, err := time.Parse("15:04", s.cfg.SchoolDayStart)
	if err != nil {
		start, _ = time.Parse("15:04", "08:30")
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, start.Hour(), start.Minute(), 0, 0, t.Location()).
		Add(time.Duration(s.cfg.LateGraceMinutes) * time.Minute)
}

// CheckIn opens today's record for the signed in teacher.
func (s *AttendanceService) CheckIn(ctx context.Context, userID string) (*models.AttendanceRecord, error) {
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	status := models.AttendancePresent
	if now.After(s.lateAfter(now)) {
		status = models.AttendanceLate
	}

	var record models.AttendanceRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("teacher_id = ? AND date = ?", teacher.ID, now.Format(utils.DateLayout)).First(&record).Error
		switch {
		case err == nil && record.CheckIn != nil:
			return errors.Wrap(ErrConflict, "already checked in today")
		case err == nil:
			record.CheckIn = &now
			record.Status = status
			record.Late = status == models.AttendanceLate
			if err := tx.Model(&record).Select("check_in", "status", "late").Updates(&record).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			record = models.AttendanceRecord{
				TeacherID: teacher.ID,
				SchoolID:  teacher.SchoolID,
				Date:      now.Format(utils.DateLayout),
				CheckIn:   &now,
				Status:    status,
				Late:      status == models.AttendanceLate,
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		default:
			return err
		}
		return recomputeAttendanceRate(tx, teacher.ID)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// CheckOut closes today's record. Short days become half-days and keep
// their late flag.
func (s *AttendanceService) CheckOut(ctx context.Context, userID string) (*models.AttendanceRecord, error) {
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var record models.AttendanceRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("teacher_id = ? AND date = ?", teacher.ID, now.Format(utils.DateLayout)).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return badRequest("You have not checked in today")
			}
			return err
		}
		if record.CheckIn == nil {
			return badRequest("You have not checked in today")
		}
		if record.CheckOut != nil {
			return errors.Wrap(ErrConflict, "already checked out today")
		}
		record.CheckOut = &now
		if now.Sub(*record.CheckIn).Hours() < s.cfg.HalfDayHours {
			record.Status = models.AttendanceHalfDay
		}
		if err := tx.Model(&record).Select("check_out", "status").Updates(&record).Error; err != nil {
			return err
		}
		return recomputeAttendanceRate(tx, teacher.ID)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// MarkInput is the principal's attendance form.
type MarkInput struct {
	TeacherID string `json:"teacher_id" validate:"required" msg:"Select a teacher"`
	Date      string `json:"date" validate:"required,date"`
	Status    string `json:"status" validate:"required,oneof=present absent late half-day" msg:"Status must be present, absent, late or half-day"`
	Notes     string `json:"notes" validate:"max=1000"`
}

// Mark creates or replaces the record of a teacher for a day.
func (s *AttendanceService) Mark(ctx context.Context, principal *models.User, in MarkInput) (*models.AttendanceRecord, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	teacher, err := findTeacher(ctx, s.db, principal.SchoolID, in.TeacherID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var record models.AttendanceRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("teacher_id = ? AND date = ?", teacher.ID, in.Date).First(&record).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		record.TeacherID = teacher.ID
		record.SchoolID = teacher.SchoolID
		record.Date = in.Date
		record.Status = in.Status
		if in.Status != models.AttendanceHalfDay {
			record.Late = in.Status == models.AttendanceLate
		}
		record.Notes = in.Notes
		record.MarkedBy = principal.ID
		if in.Status == models.AttendancePresent && record.CheckIn == nil {
			record.CheckIn = &now
		}
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		return recomputeAttendanceRate(tx, teacher.ID)
	})
	if err != nil {
		return nil, err
	}

	if in.Status == models.AttendanceAbsent {
		s.notify.NotifyAsync([]string{teacher.UserID}, notifications.Notice{
			Title:     "Attendance updated",
			Message:   fmt.Sprintf("You were marked absent on %s.", in.Date),
			Type:      notifications.TypeWarning,
			ActionURL: "/teacher/attendance",
			SchoolID:  teacher.SchoolID,
		})
	}
	return &record, nil
}

// DateRange bounds history queries. Empty ends are open.
type DateRange struct {
	From string
	To   string
}

func (r DateRange) apply(q *gorm.DB) *gorm.DB {
	if r.From != "" {
		q = q.Where("date >= ?", r.From)
	}
	if r.To != "" {
		q = q.Where("date <= ?", r.To)
	}
	return q
}

func (r DateRange) validate() error {
	for _, d := range []string{r.From, r.To} {
		if _, err := utils.ParseOptionalDate(d); err != nil {
			return badRequest("Dates must use the YYYY-MM-DD format")
		}
	}
	return nil
}

// History lists the signed in teacher's records, newest first.
func (s *AttendanceService) History(ctx context.Context, userID string, r DateRange) ([]models.AttendanceRecord, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	var records []models.AttendanceRecord
	err = r.apply(s.db.WithContext(ctx).Where("teacher_id = ?", teacher.ID)).
		Order("date DESC").Find(&records).Error
	return records, err
}

// Summary counts the signed in teacher's records per status.
func (s *AttendanceService) Summary(ctx context.Context, userID string, r DateRange) (*AttendanceSummary, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	sum, err := attendanceSummary(r.apply(s.db.WithContext(ctx).Model(&models.AttendanceRecord{}).Where("teacher_id = ?", teacher.ID)))
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

func attendanceSummary(q *gorm.DB) (AttendanceSummary, error) {
	var rows []struct {
		Status string
		Total  int
	}
	if err := q.Select("status, COUNT(*) AS total").Group("status").Scan(&rows).Error; err != nil {
		return AttendanceSummary{}, err
	}
	var sum AttendanceSummary
	for _, r := range rows {
		switch r.Status {
		case models.AttendancePresent:
			sum.Present += r.Total
		case models.AttendanceAbsent:
			sum.Absent += r.Total
		case models.AttendanceLate:
			sum.Late += r.Total
		case models.AttendanceHalfDay:
			sum.HalfDay += r.Total
		}
		sum.Total += r.Total
	}
	return sum.withRate(), nil
}

func recomputeAttendanceRate(tx *gorm.DB, teacherID string) error {
	sum, err := attendanceSummary(tx.Model(&models.AttendanceRecord{}).Where("teacher_id = ?", teacherID))
	if err != nil {
		return err
	}
	return tx.Model(&models.Teacher{}).Where("id = ?", teacherID).Update("stats_attendance_rate", sum.Rate).Error
}

// DayEntry pairs a teacher with their record for a day, if any.
type DayEntry struct {
	TeacherID   string                   `json:"teacher_id"`
	TeacherName string                   `json:"teacher_name"`
	Department  string                   `json:"department"`
	Record      *models.AttendanceRecord `json:"record"`
}

// SchoolDay lists every teacher of the school with their record for date.
func (s *AttendanceService) SchoolDay(ctx context.Context, schoolID, date string) ([]DayEntry, error) {
	if date == "" {
		date = s.now().Format(utils.DateLayout)
	}
	if _, err := utils.ParseOptionalDate(date); err != nil {
		return nil, badRequest("Dates must use the YYYY-MM-DD format")
	}

	var teachers []models.Teacher
	if err := s.db.WithContext(ctx).Where("school_id = ?", schoolID).Order("personal_full_name").Find(&teachers).Error; err != nil {
		return nil, err
	}
	var records []models.AttendanceRecord
	if err := s.db.WithContext(ctx).Where("school_id = ? AND date = ?", schoolID, date).Find(&records).Error; err != nil {
		return nil, err
	}
	byTeacher := make(map[string]*models.AttendanceRecord, len(records))
	for i := range records {
		byTeacher[records[i].TeacherID] = &records[i]
	}

	entries := make([]DayEntry, 0, len(teachers))
	for _, t := range teachers {
		entries = append(entries, DayEntry{
			TeacherID:   t.ID,
			TeacherName: t.Personal.FullName,
			Department:  t.Professional.Department,
			Record:      byTeacher[t.ID],
		})
	}
	return entries, nil
}

// SweepAbsences marks every teacher without a record for day as absent.
func (s *AttendanceService) SweepAbsences(ctx context.Context, day time.Time) (int, error) {
	date := day.Format(utils.DateLayout)
	var missing []models.Teacher
	err := s.db.WithContext(ctx).
		Where("id NOT IN (?)", s.db.Model(&models.AttendanceRecord{}).Select("teacher_id").Where("date = ?", date)).
		Find(&missing).Error
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, t := range missing {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&models.AttendanceRecord{
				TeacherID: t.ID,
				SchoolID:  t.SchoolID,
				Date:      date,
				Status:    models.AttendanceAbsent,
				Notes:     "No check-in recorded",
			}).Error; err != nil {
				return err
			}
			return recomputeAttendanceRate(tx, t.ID)
		})
		if err != nil {
			logrus.WithError(err).WithField("teacher_id", t.ID).Error("Failed to record absence")
			continue
		}
		marked++
	}
	return marked, nil
}
