package models

// DeletePolicy - поведение внешнего ключа при удалении родительской записи
type DeletePolicy string

const (
	DeleteRestrict DeletePolicy = "RESTRICT"
	DeleteSetNull  DeletePolicy = "SET NULL"
	DeleteCascade  DeletePolicy = "CASCADE"
)

// Relation описывает внешний ключ: модель, поле-связь и политику удаления.
// Теги constraint у моделей должны совпадать с этим каталогом.
type Relation struct {
	Model    interface{}
	Field    string
	OnDelete DeletePolicy
}

// Relations - все внешние ключи схемы.
// Платежи переживают удаление пользователя и заказа (SET NULL), история оплат не теряется.
var Relations = []Relation{
	{Model: &Payment{}, Field: "User", OnDelete: DeleteSetNull},
	{Model: &Payment{}, Field: "Order", OnDelete: DeleteSetNull},
	{Model: &Order{}, Field: "User", OnDelete: DeleteCascade},
	{Model: &Enrollment{}, Field: "Student", OnDelete: DeleteCascade},
	{Model: &Enrollment{}, Field: "Course", OnDelete: DeleteCascade},
	{Model: &Course{}, Field: "Category", OnDelete: DeleteSetNull},
	{Model: &CoursePart{}, Field: "Course", OnDelete: DeleteCascade},
	{Model: &Lesson{}, Field: "Part", OnDelete: DeleteCascade},
	{Model: &OnboardingAnswer{}, Field: "User", OnDelete: DeleteSetNull},
	{Model: &OnboardingAnswer{}, Field: "University", OnDelete: DeleteSetNull},
	{Model: &PaymentAnomaly{}, Field: "Payment", OnDelete: DeleteSetNull},
}

// AllModels - порядок важен для AutoMigrate: родители раньше детей
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&University{},
		&OnboardingAnswer{},
		&Category{},
		&Course{},
		&CoursePart{},
		&Lesson{},
		&Enrollment{},
		&Order{},
		&Payment{},
		&PaymentAnomaly{},
		&OutboxEvent{},
	}
}
