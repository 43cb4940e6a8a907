package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"schoolpulse_go/models"
	"schoolpulse_go/storage"
	"schoolpulse_go/utils"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// TrendMonths is how many calendar months the attendance trend covers.
const TrendMonths = 6

type AnalyticsService struct {
	db    *gorm.DB
	store storage.FileStore
	now   func() time.Time
}

func NewAnalyticsService(db *gorm.DB, store storage.FileStore) *AnalyticsService {
	return &AnalyticsService{db: db, store: store, now: time.Now}
}

type TeacherPerformance struct {
	Name        string  `json:"name"`
	Performance float64 `json:"performance"`
	Attendance  float64 `json:"attendance"`
	Training    int     `json:"training"`
}

type DepartmentStat struct {
	Name           string  `json:"name"`
	Count          int     `json:"count"`
	AvgPerformance float64 `json:"avg_performance"`
}

type TrendPoint struct {
	Month      string  `json:"month"`
	Attendance float64 `json:"attendance"`
}

type ProgressSlice struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type Analytics struct {
	TeacherPerformance []TeacherPerformance `json:"teacher_performance"`
	DepartmentStats    []DepartmentStat     `json:"department_stats"`
	AveragePerformance int                  `json:"average_performance"`
	AverageAttendance  int                  `json:"average_attendance"`
	AttendanceTrend    []TrendPoint         `json:"attendance_trend"`
	TrainingProgress   []ProgressSlice      `json:"training_progress"`
}

// Compute builds the analytics page of a school.
func (s *AnalyticsService) Compute(ctx context.Context, schoolID string) (*Analytics, error) {
	var teachers []models.Teacher
	var enrollments []models.TrainingEnrollment
	var trend []TrendPoint

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.WithContext(gctx).Where("school_id = ?", schoolID).Order("personal_full_name").Find(&teachers).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Where("school_id = ?", schoolID).Find(&enrollments).Error
	})
	g.Go(func() error {
		var err error
		trend, err = s.attendanceTrend(gctx, schoolID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Analytics{
		TeacherPerformance: make([]TeacherPerformance, 0, len(teachers)),
		AttendanceTrend:    trend,
	}
	type deptAcc struct {
		count int
		sum   float64
	}
	depts := map[string]*deptAcc{}
	var perfSum, attSum float64
	for _, t := range teachers {
		out.TeacherPerformance = append(out.TeacherPerformance, TeacherPerformance{
			Name:        utils.FirstName(t.Personal.FullName, "Teacher"),
			Performance: t.Stats.PerformanceScore,
			Attendance:  t.Stats.AttendanceRate,
			Training:    t.Stats.TrainingCompleted,
		})
		name := t.Professional.Department
		if name == "" {
			name = "Unknown"
		}
		if depts[name] == nil {
			depts[name] = &deptAcc{}
		}
		depts[name].count++
		depts[name].sum += t.Stats.PerformanceScore
		perfSum += t.Stats.PerformanceScore
		attSum += t.Stats.AttendanceRate
	}
	if n := len(teachers); n > 0 {
		out.AveragePerformance = int(math.Round(perfSum / float64(n)))
		out.AverageAttendance = int(math.Round(attSum / float64(n)))
	}

	out.DepartmentStats = make([]DepartmentStat, 0, len(depts))
	for name, acc := range depts {
		out.DepartmentStats = append(out.DepartmentStats, DepartmentStat{
			Name:           name,
			Count:          acc.count,
			AvgPerformance: utils.Round1(acc.sum / float64(acc.count)),
		})
	}
	sort.Slice(out.DepartmentStats, func(i, j int) bool { return out.DepartmentStats[i].Name < out.DepartmentStats[j].Name })

	out.TrainingProgress = trainingProgress(teachers, enrollments)
	return out, nil
}

// trainingProgress buckets teachers by their furthest training state.
func trainingProgress(teachers []models.Teacher, enrollments []models.TrainingEnrollment) []ProgressSlice {
	completed := map[string]bool{}
	open := map[string]bool{}
	for _, e := range enrollments {
		if e.CompletedAt != nil {
			completed[e.TeacherID] = true
		} else {
			open[e.TeacherID] = true
		}
	}
	var done, inProgress, notStarted int
	for _, t := range teachers {
		switch {
		case completed[t.ID]:
			done++
		case open[t.ID]:
			inProgress++
		default:
			notStarted++
		}
	}
	return []ProgressSlice{
		{Name: "Completed", Value: done},
		{Name: "In Progress", Value: inProgress},
		{Name: "Not Started", Value: notStarted},
	}
}

// attendanceTrend returns the attendance percentage of the last
// TrendMonths calendar months, oldest first.
func (s *AnalyticsService) attendanceTrend(ctx context.Context, schoolID string) ([]TrendPoint, error) {
	now := s.now()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	points := make([]TrendPoint, 0, TrendMonths)
	for i := TrendMonths - 1; i >= 0; i-- {
		from := current.AddDate(0, -i, 0)
		to := from.AddDate(0, 1, 0)
		sum, err := attendanceSummary(s.db.WithContext(ctx).Model(&models.AttendanceRecord{}).
			Where("school_id = ? AND date >= ? AND date < ?", schoolID, from.Format(utils.DateLayout), to.Format(utils.DateLayout)))
		if err != nil {
			return nil, err
		}
		points = append(points, TrendPoint{Month: from.Format("Jan"), Attendance: sum.Rate})
	}
	return points, nil
}

// Export renders the analytics as a workbook. When archive is set the file
// is also stored and its URL returned.
func (s *AnalyticsService) Export(ctx context.Context, schoolID string, archive bool) ([]byte, string, error) {
	a, err := s.Compute(ctx, schoolID)
	if err != nil {
		return nil, "", err
	}
	data, err := analyticsWorkbook(a)
	if err != nil {
		return nil, "", err
	}
	if !archive {
		return data, "", nil
	}
	url, err := s.store.Put(ctx, storage.ObjectKey("reports", schoolID, "xlsx", s.now()), storage.ContentType("xlsx"), data)
	if err != nil {
		return nil, "", errors.Wrap(err, "archiving analytics export")
	}
	return data, url, nil
}

// ExportFileName names a download made at t.
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("analytics_%s.xlsx", t.Format("20060102"))
}

func analyticsWorkbook(a *Analytics) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheets := []struct {
		name   string
		header []interface{}
		rows   [][]interface{}
	}{
		{name: "Performance", header: []interface{}{"Teacher", "Performance", "Attendance", "Trainings Completed"}},
		{name: "Departments", header: []interface{}{"Department", "Teachers", "Avg Performance"}},
		{name: "Attendance", header: []interface{}{"Month", "Attendance %"}},
		{name: "Training", header: []interface{}{"Status", "Teachers"}},
	}
	for _, t := range a.TeacherPerformance {
		sheets[0].rows = append(sheets[0].rows, []interface{}{t.Name, t.Performance, t.Attendance, t.Training})
	}
	for _, d := range a.DepartmentStats {
		sheets[1].rows = append(sheets[1].rows, []interface{}{d.Name, d.Count, d.AvgPerformance})
	}
	for _, p := range a.AttendanceTrend {
		sheets[2].rows = append(sheets[2].rows, []interface{}{p.Month, p.Attendance})
	}
	for _, p := range a.TrainingProgress {
		sheets[3].rows = append(sheets[3].rows, []interface{}{p.Name, p.Value})
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sh.name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return nil, err
		}
		header := sh.header
		if err := f.SetSheetRow(sh.name, "A1", &header); err != nil {
			return nil, err
		}
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		if err := f.SetCellStyle(sh.name, "A1", last, bold); err != nil {
			return nil, err
		}
		for r, row := range sh.rows {
			row := row
			cell, _ := excelize.CoordinatesToCellName(1, r+2)
			if err := f.SetSheetRow(sh.name, cell, &row); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "writing workbook")
	}
	return buf.Bytes(), nil
}
