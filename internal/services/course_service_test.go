package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	testutil "github.com/charlesng35/coursehub/internal/database/testutil"
	"github.com/charlesng35/coursehub/internal/models"
	apperrors "github.com/charlesng35/coursehub/pkg/errors"
)

func newCourseFixture(t *testing.T) (*gorm.DB, *CourseService) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	svc, err := NewCourseService(db, audit)
	require.NoError(t, err)
	return db, svc
}

func TestCourseServiceCreateAndConflict(t *testing.T) {
	_, svc := newCourseFixture(t)
	ctx := context.Background()

	course, err := svc.Create(ctx, CreateCourseInput{Code: " math101 ", Title: "Algebra"})
	require.NoError(t, err)
	require.Equal(t, "MATH101", course.Code)

	_, err = svc.Create(ctx, CreateCourseInput{Code: "MATH101", Title: "Again"})
	require.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = svc.Create(ctx, CreateCourseInput{Code: "", Title: "x"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	courses, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, courses, 1)
}

func TestCourseServiceEvaluations(t *testing.T) {
	_, svc := newCourseFixture(t)
	ctx := context.Background()

	course, err := svc.Create(ctx, CreateCourseInput{Code: "BIO", Title: "Biology"})
	require.NoError(t, err)

	hidden, err := svc.CreateEvaluation(ctx, course.ID, CreateEvaluationInput{Name: "Quiz", Weight: 20, Visible: ptr(false)})
	require.NoError(t, err)
	require.False(t, hidden.Visible)
	require.Equal(t, float64(100), hidden.MaxScore)

	_, err = svc.CreateEvaluation(ctx, course.ID, CreateEvaluationInput{Name: "Exam", Weight: 80, MaxScore: 20})
	require.NoError(t, err)

	loaded, err := svc.Get(ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Evaluations, 2)
	require.Equal(t, "Quiz", loaded.Evaluations[0].Name)
	require.False(t, loaded.Evaluations[0].Visible)

	_, err = svc.CreateEvaluation(ctx, 999, CreateEvaluationInput{Name: "Lost"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.Get(ctx, 999)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCourseServiceDeleteEvaluationDetachesTools(t *testing.T) {
	db, svc := newCourseFixture(t)
	ctx := context.Background()

	course, err := svc.Create(ctx, CreateCourseInput{Code: "CHEM", Title: "Chemistry"})
	require.NoError(t, err)
	eval, err := svc.CreateEvaluation(ctx, course.ID, CreateEvaluationInput{Name: "Lab"})
	require.NoError(t, err)

	tool := models.LTITool{
		Name: "Lab sim", LaunchURL: "https://lab.example.com", ConsumerKey: "k", SharedSecret: "s",
		CourseID: &course.ID, GradebookEvalID: &eval.ID,
	}
	require.NoError(t, db.Create(&tool).Error)

	require.NoError(t, svc.DeleteEvaluation(ctx, eval.ID))
	require.ErrorIs(t, svc.DeleteEvaluation(ctx, eval.ID), apperrors.ErrNotFound)

	var reloaded models.LTITool
	require.NoError(t, db.First(&reloaded, tool.ID).Error)
	require.Nil(t, reloaded.GradebookEvalID)
	require.Equal(t, course.ID, *reloaded.CourseID)
}

func TestCourseServiceDeleteRemovesCourseToolsAndDetachesLinkedTools(t *testing.T) {
	db, svc := newCourseFixture(t)
	ctx := context.Background()

	course, err := svc.Create(ctx, CreateCourseInput{Code: "HIST", Title: "History"})
	require.NoError(t, err)

	parent := models.LTITool{Name: "Archive", LaunchURL: "https://archive.example.com", ConsumerKey: "pk", SharedSecret: "ps", CourseID: &course.ID}
	require.NoError(t, db.Create(&parent).Error)
	global := models.LTITool{Name: "Global archive", LaunchURL: "https://archive.example.com/g"}
	global.SetParent(&parent)
	global.Parent = nil
	require.NoError(t, db.Create(&global).Error)

	require.NoError(t, svc.Delete(ctx, course.ID))
	require.ErrorIs(t, svc.Delete(ctx, course.ID), apperrors.ErrNotFound)

	require.ErrorIs(t, db.First(&models.LTITool{}, parent.ID).Error, gorm.ErrRecordNotFound)

	var survivor models.LTITool
	require.NoError(t, db.First(&survivor, global.ID).Error)
	require.Nil(t, survivor.ParentID)
	require.Equal(t, "pk", survivor.ConsumerKey)
	require.Equal(t, "ps", survivor.SharedSecret)
}
