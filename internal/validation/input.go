package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Константы валидации
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MinServiceNameLength = 3
	MaxServiceNameLength = 200
	MaxRequirementsLength = 5000
	MinMessageLength = 1
	MaxMessageLength = 5000
	MaxDisputeDetailsLength = 5000
	MaxEvidenceContentLength = 5000
	MaxAdminNotesLength = 2000
	MaxDeliverableMessageLength = 5000
	MaxDeliverableFiles = 20
	MinPrice = 0.0
	MaxPrice = 100000000.0 // 100 миллионов
	MaxAmount = 100000000.0
	MinDeliveryDays = 1
	MaxDeliveryDays = 365
	MaxEvidenceLinkLength = 500
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	email = strings.TrimSpace(email)
	email = strings.ToLower(email)

	// Базовая проверка формата
	if !strings.Contains(email, "@") {
		return fmt.Errorf("email должен содержать символ @")
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("некорректный формат email")
	}

	localPart := parts[0]
	domainPart := parts[1]

	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}

	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}

	if !strings.Contains(domainPart, ".") {
		return fmt.Errorf("доменная часть email должна содержать точку")
	}

	emailRegex := regexp.MustCompile(`^[a-z0-9._+-]+$`)
	if !emailRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}

	domainRegex := regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	if !domainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateUsername проверяет имя пользователя.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("имя пользователя обязательно")
	}

	username = strings.TrimSpace(username)

	if err := ValidateLength("имя пользователя", username, MinUsernameLength, MaxUsernameLength); err != nil {
		return err
	}

	// Проверка на допустимые символы (только буквы, цифры и подчеркивание)
	usernameRegex := regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("имя пользователя может содержать только буквы, цифры и подчеркивание")
	}

	if len(username) > 0 && unicode.IsDigit(rune(username[0])) {
		return fmt.Errorf("имя пользователя не может начинаться с цифры")
	}

	return nil
}

// ValidateServiceName проверяет название услуги.
func ValidateServiceName(name string) error {
	if name == "" {
		return fmt.Errorf("название услуги обязательно")
	}

	name = strings.TrimSpace(name)

	if err := ValidateLength("название услуги", name, MinServiceNameLength, MaxServiceNameLength); err != nil {
		return err
	}

	return nil
}

// ValidateAmount проверяет денежную сумму.
func ValidateAmount(fieldName string, amount float64) error {
	if amount <= MinPrice {
		return fmt.Errorf("%s должна быть положительной", fieldName)
	}
	if amount > MaxAmount {
		return fmt.Errorf("%s не может превышать %.0f", fieldName, MaxAmount)
	}
	return nil
}

// ValidateDeliveryTime проверяет срок выполнения в днях.
func ValidateDeliveryTime(days int) error {
	if days < MinDeliveryDays {
		return fmt.Errorf("срок выполнения должен быть не менее %d дня", MinDeliveryDays)
	}
	if days > MaxDeliveryDays {
		return fmt.Errorf("срок выполнения не может превышать %d дней", MaxDeliveryDays)
	}
	return nil
}

// ValidateRequirements проверяет требования к заказу.
func ValidateRequirements(requirements string) error {
	requirements = strings.TrimSpace(requirements)

	if err := ValidateLength("требования", requirements, 0, MaxRequirementsLength); err != nil {
		return err
	}

	return nil
}

// ValidateMessageContent проверяет содержимое сообщения.
func ValidateMessageContent(content string) error {
	if content == "" {
		return fmt.Errorf("сообщение не может быть пустым")
	}

	content = strings.TrimSpace(content)

	if err := ValidateLength("сообщение", content, MinMessageLength, MaxMessageLength); err != nil {
		return err
	}

	return nil
}

// ValidateDisputeDetails проверяет описание спора.
func ValidateDisputeDetails(details string) error {
	details = strings.TrimSpace(details)

	if err := ValidateLength("описание спора", details, 0, MaxDisputeDetailsLength); err != nil {
		return err
	}

	return nil
}

// ValidateEvidenceLink проверяет ссылку в доказательстве.
func ValidateEvidenceLink(link string) error {
	link = strings.TrimSpace(link)

	if err := ValidateLength("ссылка", link, 1, MaxEvidenceLinkLength); err != nil {
		return err
	}

	parsedURL, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("некорректный формат URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("ссылка должна начинаться с http:// или https://")
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("ссылка должна содержать доменное имя")
	}

	return nil
}

// ValidateEvidenceContent проверяет содержимое доказательства.
func ValidateEvidenceContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("содержимое доказательства не может быть пустым")
	}

	if err := ValidateLength("содержимое доказательства", content, 1, MaxEvidenceContentLength); err != nil {
		return err
	}

	return nil
}

// ValidateDeliverable проверяет результат работы.
func ValidateDeliverable(message string, files []string) error {
	message = strings.TrimSpace(message)

	if message == "" && len(files) == 0 {
		return fmt.Errorf("результат работы должен содержать сообщение или файлы")
	}

	if err := ValidateLength("сообщение о результате", message, 0, MaxDeliverableMessageLength); err != nil {
		return err
	}

	if len(files) > MaxDeliverableFiles {
		return fmt.Errorf("количество файлов не может превышать %d", MaxDeliverableFiles)
	}

	for _, f := range files {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("путь к файлу не может быть пустым")
		}
	}

	return nil
}
