package sites

import (
	"strings"

	"santiye-backend/internal/database"
	"santiye-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

type SiteGroupResponse struct {
	ID        uint           `json:"id"`
	Name      string         `json:"name"`
	Sites     []SiteResponse `json:"sites,omitempty"`
	CreatedAt string         `json:"created_at"`
}

type SiteResponse struct {
	ID        uint   `json:"id"`
	GroupID   *uint  `json:"group_id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	Phone     string `json:"phone"`
	CreatedAt string `json:"created_at"`
}

type CreateSiteGroupRequest struct {
	Name string `json:"name"`
}

type CreateSiteRequest struct {
	Name     string  `json:"name"`
	Location string  `json:"location"`
	Phone    *string `json:"phone"` // Opsiyonel
	GroupID  *uint   `json:"group_id"`
}

type UpdateSiteRequest struct {
	Name     *string `json:"name"`
	Location *string `json:"location"`
	Phone    *string `json:"phone"`
	GroupID  *uint   `json:"group_id"`
}

type CreateSiteEngineerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func siteToResponse(s *models.Site) SiteResponse {
	return SiteResponse{
		ID:        s.ID,
		GroupID:   s.GroupID,
		Name:      s.Name,
		Location:  s.Location,
		Phone:     s.Phone,
		CreatedAt: s.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// ----------------------------------------
// ŞANTİYE GRUBU CRUD
// ----------------------------------------

func CreateSiteGroupHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateSiteGroupRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri gönderildi")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Grup adı boş olamaz")
		}

		group := models.SiteGroup{Name: body.Name}
		if err := database.DB.Create(&group).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Grup oluşturulamadı")
		}

		return c.Status(fiber.StatusCreated).JSON(SiteGroupResponse{
			ID:        group.ID,
			Name:      group.Name,
			CreatedAt: group.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
}

func ListSiteGroupsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var groups []models.SiteGroup
		if err := database.DB.Preload("Sites").Find(&groups).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Gruplar listelenemedi")
		}

		res := make([]SiteGroupResponse, 0, len(groups))
		for _, g := range groups {
			gr := SiteGroupResponse{
				ID:        g.ID,
				Name:      g.Name,
				CreatedAt: g.CreatedAt.Format("2006-01-02 15:04:05"),
				Sites:     make([]SiteResponse, 0, len(g.Sites)),
			}
			for i := range g.Sites {
				gr.Sites = append(gr.Sites, siteToResponse(&g.Sites[i]))
			}
			res = append(res, gr)
		}

		return c.JSON(res)
	}
}

func DeleteSiteGroupHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		// Grupta şantiye varsa silinemez
		var count int64
		if err := database.DB.Model(&models.Site{}).Where("group_id = ?", id).Count(&count).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Grup kontrol edilemedi")
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "Grupta şantiye varken grup silinemez")
		}

		if err := database.DB.Delete(&models.SiteGroup{}, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Grup silinemedi")
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ----------------------------------------
// ŞANTİYE CRUD
// ----------------------------------------

func CreateSiteHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateSiteRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri gönderildi")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Şantiye adı boş olamaz")
		}

		if body.GroupID != nil {
			var group models.SiteGroup
			if err := database.DB.First(&group, *body.GroupID).Error; err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Grup bulunamadı")
			}
		}

		site := models.Site{
			Name:     body.Name,
			Location: body.Location,
			GroupID:  body.GroupID,
		}
		if body.Phone != nil {
			site.Phone = strings.TrimSpace(*body.Phone)
		}

		if err := database.DB.Create(&site).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Şantiye oluşturulamadı")
		}

		return c.Status(fiber.StatusCreated).JSON(siteToResponse(&site))
	}
}

func ListSitesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var sites []models.Site
		if err := database.DB.Find(&sites).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Şantiyeler listelenemedi")
		}

		res := make([]SiteResponse, 0, len(sites))
		for i := range sites {
			res = append(res, siteToResponse(&sites[i]))
		}

		return c.JSON(res)
	}
}

func GetSiteHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var site models.Site
		if err := database.DB.First(&site, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Şantiye bulunamadı")
		}

		return c.JSON(siteToResponse(&site))
	}
}

func UpdateSiteHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var site models.Site
		if err := database.DB.First(&site, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Şantiye bulunamadı")
		}

		var body UpdateSiteRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri gönderildi")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Şantiye adı boş olamaz")
			}
			site.Name = name
		}

		if body.Location != nil {
			site.Location = *body.Location
		}

		if body.Phone != nil {
			site.Phone = strings.TrimSpace(*body.Phone)
		}

		if body.GroupID != nil {
			if *body.GroupID == 0 {
				site.GroupID = nil
			} else {
				var group models.SiteGroup
				if err := database.DB.First(&group, *body.GroupID).Error; err != nil {
					return fiber.NewError(fiber.StatusBadRequest, "Grup bulunamadı")
				}
				site.GroupID = body.GroupID
			}
		}

		if err := database.DB.Save(&site).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Şantiye güncellenemedi")
		}

		return c.JSON(siteToResponse(&site))
	}
}

func DeleteSiteHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		if err := database.DB.Delete(&models.Site{}, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Şantiye silinemedi")
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ----------------------------------------
// ŞANTİYE SORUMLUSU OLUŞTURMA
// ----------------------------------------

func CreateSiteEngineerHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		siteID := c.Params("id")

		// Şantiye kontrolü
		var site models.Site
		if err := database.DB.First(&site, "id = ?", siteID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Şantiye bulunamadı")
		}

		var body CreateSiteEngineerRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri gönderildi")
		}

		body.Email = strings.ToLower(strings.TrimSpace(body.Email))
		body.Name = strings.TrimSpace(body.Name)

		if body.Name == "" || body.Email == "" || body.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "İsim, email ve şifre zorunlu")
		}

		// Email kontrolü
		var exist models.User
		if err := database.DB.Where("email = ?", body.Email).First(&exist).Error; err == nil {
			return fiber.NewError(fiber.StatusBadRequest, "Bu email zaten kayıtlı")
		}

		hash, _ := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)

		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         models.RoleSiteEngineer,
			SiteID:       &site.ID,
		}

		if err := database.DB.Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Şantiye sorumlusu oluşturulamadı")
		}

		// NOT: Şifre sadece oluşturma sırasında bir kez döndürülür
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":       user.ID,
			"name":     user.Name,
			"email":    user.Email,
			"role":     user.Role,
			"site_id":  user.SiteID,
			"password": body.Password, // Sadece oluşturma sırasında (bir kez)
		})
	}
}

func ListSiteEngineersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		siteID := c.Params("id")

		var users []models.User
		if err := database.DB.
			Where("site_id = ? AND role = ?", siteID, models.RoleSiteEngineer).
			Order("created_at DESC").
			Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Sorumlular listelenemedi")
		}

		res := make([]fiber.Map, 0, len(users))
		for _, u := range users {
			res = append(res, fiber.Map{
				"id":         u.ID,
				"name":       u.Name,
				"email":      u.Email,
				"role":       u.Role,
				"site_id":    u.SiteID,
				"created_at": u.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}

		return c.JSON(res)
	}
}
