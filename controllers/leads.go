package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/BerniceZTT/dialer_end/models"
	"github.com/BerniceZTT/dialer_end/repository"
	"github.com/BerniceZTT/dialer_end/service"
	"github.com/BerniceZTT/dialer_end/utils"

	"github.com/gin-gonic/gin"
)

// LeadController 线索接口
type LeadController struct {
	leads    *service.LeadService
	pipeline *service.Pipeline
	ledger   *service.Ledger
	sessions *service.SessionRegistry
}

// NewLeadController 创建线索接口
func NewLeadController(leads *service.LeadService, pipeline *service.Pipeline, ledger *service.Ledger, sessions *service.SessionRegistry) *LeadController {
	return &LeadController{leads: leads, pipeline: pipeline, ledger: ledger, sessions: sessions}
}

// ListLeads 获取线索列表
func (lc *LeadController) ListLeads(c *gin.Context) {
	query := repository.LeadQuery{
		Stage:     models.Stage(c.Query("stage")),
		Tier:      c.Query("tier"),
		Keyword:   strings.TrimSpace(c.Query("keyword")),
		ClaimedBy: c.Query("claimedBy"),
	}
	if cats := c.Query("category"); cats != "" {
		query.Categories = strings.Split(cats, ",")
	}
	if active, err := strconv.ParseBool(c.DefaultQuery("activeOnly", "false")); err == nil {
		query.ActiveOnly = active
	}

	leads, err := lc.leads.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("X-Total-Count", strconv.Itoa(len(leads)))
	utils.SuccessResponse(c, gin.H{"leads": leads, "total": len(leads)}, "")
}

// GetLead 获取线索详情
func (lc *LeadController) GetLead(c *gin.Context) {
	lead, err := lc.leads.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, lead, "")
}

// CreateLead 创建线索
func (lc *LeadController) CreateLead(c *gin.Context) {
	var req models.LeadCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的请求数据: "+err.Error()))
		return
	}

	lead, err := lc.leads.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, lead, "线索创建成功", http.StatusCreated)
}

// UpdateLead 更新线索资料
func (lc *LeadController) UpdateLead(c *gin.Context) {
	var req models.LeadUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的请求数据: "+err.Error()))
		return
	}

	lead, err := lc.leads.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, lead, "线索更新成功")
}

// DeleteLead 删除线索
func (lc *LeadController) DeleteLead(c *gin.Context) {
	if err := lc.leads.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, nil, "线索已删除")
}

// ChangeStage 变更线索阶段
func (lc *LeadController) ChangeStage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.StageChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("目标阶段不能为空"))
		return
	}

	lead, err := lc.pipeline.Transition(c.Request.Context(), c.Param("id"), req.Stage, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, lead, "阶段已更新")
}

// ListInteractions 获取线索互动历史
func (lc *LeadController) ListInteractions(c *gin.Context) {
	records, err := lc.ledger.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"interactions": records}, "")
}

// CreateInteraction 手动记录互动。带结果的记录会释放占用，并让坐席的会话前进。
func (lc *LeadController) CreateInteraction(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var input models.CreateInteractionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的请求数据: "+err.Error()))
		return
	}

	leadID := c.Param("id")
	entry := service.LogEntry{
		LeadID:        leadID,
		Type:          input.Type,
		Description:   input.Description,
		Outcome:       input.Outcome,
		ActorID:       user.ID,
		ManualOutcome: input.Outcome != "",
	}
	record, err := lc.ledger.Log(c.Request.Context(), entry)
	if err != nil {
		respondError(c, err)
		return
	}

	if (input.Type == models.InteractionCall || entry.ManualOutcome) && lc.sessions != nil {
		lc.sessions.AdvancePast(c.Request.Context(), user.ID, leadID)
	}
	utils.SuccessResponse(c, record, "互动已记录", http.StatusCreated)
}
