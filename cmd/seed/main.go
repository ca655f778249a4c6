package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-queue-scheduling/internal/appointment"
	"github.com/hackgods/clinic-queue-scheduling/internal/config"
	"github.com/hackgods/clinic-queue-scheduling/internal/db"
	"github.com/hackgods/clinic-queue-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-queue-scheduling/internal/redis"
	"github.com/hackgods/clinic-queue-scheduling/internal/schedule"
	"github.com/hackgods/clinic-queue-scheduling/pkg/logging"
)

var departments = []string{
	"General Medicine",
	"Pediatrics",
	"Dermatology",
	"ENT",
	"Orthopedics",
	"Gynecology",
	"Cardiology",
	"Ophthalmology",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)
	logger.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	doctors, err := seedDoctors(context.Background(), pool, faker, logger, 12)
	if err != nil {
		logger.Error("seed doctors", "error", err)
		os.Exit(1)
	}
	patients, err := seedPatients(context.Background(), pool, faker, logger, 600)
	if err != nil {
		logger.Error("seed patients", "error", err)
		os.Exit(1)
	}
	if err := seedBookings(context.Background(), pool, cfg, faker, logger, doctors, patients); err != nil {
		logger.Error("seed bookings", "error", err)
		os.Exit(1)
	}

	logger.Info("seed complete")
}

func weeklyTemplate(faker *gofakeit.Faker) []schedule.DayAvailability {
	morning := schedule.Session{From: "09:00 AM", To: "01:00 PM"}
	evening := schedule.Session{From: "04:00 PM", To: "07:00 PM"}

	var avail []schedule.DayAvailability
	for _, day := range []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"} {
		sessions := []schedule.Session{morning}
		if day != "Saturday" && faker.Bool() {
			sessions = append(sessions, evening)
		}
		avail = append(avail, schedule.DayAvailability{Day: day, TimeSlots: sessions})
	}
	return avail
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logger *logging.Logger, count int) ([]string, error) {
	logger.Info("seeding doctors", "count", count)

	names := make([]string, 0, count)
	err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			name := "Dr. " + faker.FirstName() + " " + faker.LastName()
			avail, err := json.Marshal(weeklyTemplate(faker))
			if err != nil {
				return err
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO doctors (id, name, department, average_consulting_time, advance_booking_days,
					free_follow_up_days, availability_slots, leave_slots, availability_extensions, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, '[]'::jsonb, '{}'::jsonb, now(), now())
				ON CONFLICT (name) DO NOTHING
			`, uuid.New(), name, departments[faker.Number(0, len(departments)-1)],
				[]int{10, 15, 20}[faker.Number(0, 2)], faker.Number(7, 30), faker.Number(0, 14), avail)
			if err != nil {
				return err
			}
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("doctors seeded", "count", len(names))
	return names, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logger *logging.Logger, count int) ([]uuid.UUID, error) {
	logger.Info("seeding patients", "count", count)

	const batchSize = 200
	ids := make([]uuid.UUID, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				id := uuid.New()
				tag, err := tx.Exec(ctx, `
					INSERT INTO patients (id, name, age, sex, phone, clinic_ids, related_patient_ids, total_appointments, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, '{}', '{}', 0, now(), now())
					ON CONFLICT (phone) DO NOTHING
				`, id, faker.Name(), faker.Number(1, 90), faker.RandomString([]string{"Male", "Female", "Other"}), faker.Numerify("+91##########"))
				if err != nil {
					return err
				}
				if tag.RowsAffected() == 1 {
					ids = append(ids, id)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		logger.Info("patients seeded", "done", end, "total", count)
	}

	return ids, nil
}

// seedBookings books a handful of advanced appointments per doctor for
// tomorrow through the booking service, so tokens and derived times match
// what the API would produce. Confirmations go to the log, not the stream.
func seedBookings(ctx context.Context, pool *pgxpool.Pool, cfg config.Config, faker *gofakeit.Faker, logger *logging.Logger, doctors []string, patients []uuid.UUID) error {
	if len(patients) == 0 {
		return nil
	}

	doctorRepo := schedule.NewPgRepository(pool, cfg.Location)
	svc := appointment.NewService(appointment.NewPgRepository(pool), doctorRepo, redisclient.NoopLocker{}, cfg,
		appointment.WithNotifier(notify.NewLogNotifier(logger)),
		appointment.WithLogger(logger))

	tomorrow := schedule.Midnight(time.Now().In(cfg.Location), cfg.Location).AddDate(0, 0, 1)
	booked := 0
	for _, name := range doctors {
		d, err := doctorRepo.GetDoctorByName(ctx, name)
		if err != nil {
			return err
		}
		plan, err := schedule.PlanDay(*d, tomorrow)
		if err != nil {
			return err
		}
		if plan.Empty() {
			continue
		}

		for n := faker.Number(2, 6); n > 0; n-- {
			slot := plan.Slots[faker.Number(0, len(plan.Slots)-1)]
			_, err := svc.BookAdvanced(ctx, appointment.AdvancedBookingRequest{
				Doctor:    name,
				PatientID: patients[faker.Number(0, len(patients)-1)],
				Date:      schedule.DateLabel(tomorrow),
				Time:      slot.Format(schedule.TimeLayout),
			})
			if errors.Is(err, appointment.ErrSlotTaken) {
				continue
			}
			if err != nil {
				return err
			}
			booked++
		}
	}

	logger.Info("bookings seeded", "count", booked, "date", schedule.DateLabel(tomorrow))
	return nil
}
