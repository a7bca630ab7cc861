package appointment

import (
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

var catalogNamespace = uuid.MustParse("6f1c3c2e-8e55-4d0b-9a56-7d2f0f3b1a10")

// CatalogID derives a stable id for built-in reference data so that the
// in-memory store and a seeded database agree.
func CatalogID(kind, name string) uuid.UUID {
	return uuid.NewSHA1(catalogNamespace, []byte(kind+":"+name))
}

func DefaultDentists() []Dentist {
	dentists := []Dentist{
		{Name: "Dr. Evelyn Reed", Specialty: "General Dentistry", Color: "#3182CE"},
		{Name: "Dr. Marcus Chen", Specialty: "Orthodontics", Color: "#38A169"},
		{Name: "Dr. Sofia Garcia", Specialty: "Periodontics", Color: "#805AD5"},
	}
	for i := range dentists {
		dentists[i].ID = CatalogID("dentist", dentists[i].Name)
	}
	return dentists
}

func DefaultServices() []Treatment {
	services := []Treatment{
		{Name: "Routine Checkup", DurationMinutes: 45},
		{Name: "Teeth Cleaning", DurationMinutes: 60},
		{Name: "Filling", DurationMinutes: 60},
		{Name: "Extraction", DurationMinutes: 90},
		{Name: "Orthodontic Consultation", DurationMinutes: 30},
	}
	for i := range services {
		services[i].ID = CatalogID("service", services[i].Name)
	}
	return services
}

// SeedCatalog loads the default dentists and services into a memory store.
func (m *MemoryStore) SeedCatalog() {
	for _, d := range DefaultDentists() {
		m.AddDentist(d)
	}
	for _, s := range DefaultServices() {
		if err := m.AddService(s); err != nil {
			panic(err)
		}
	}
}

// FakePatients generates n patients with gofakeit. The same seed yields the
// same patients; 0 picks a random seed.
func FakePatients(n int, seed uint64) []Patient {
	faker := gofakeit.New(seed)

	patients := make([]Patient, 0, n)
	for i := 0; i < n; i++ {
		email := faker.Email()
		phone := faker.Phone()
		patients = append(patients, Patient{
			ID:    uuid.MustParse(faker.UUID()),
			Name:  faker.Name(),
			Email: &email,
			Phone: &phone,
		})
	}
	return patients
}
