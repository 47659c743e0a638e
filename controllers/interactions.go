package controllers

import (
	"strconv"
	"time"

	"github.com/BerniceZTT/dialer_end/models"
	"github.com/BerniceZTT/dialer_end/service"
	"github.com/BerniceZTT/dialer_end/utils"

	"github.com/gin-gonic/gin"
)

// InteractionController 互动统计接口
type InteractionController struct {
	ledger *service.Ledger
	clock  service.Clock
}

// NewInteractionController 创建互动统计接口
func NewInteractionController(ledger *service.Ledger, clock service.Clock) *InteractionController {
	if clock == nil {
		clock = service.SystemClock
	}
	return &InteractionController{ledger: ledger, clock: clock}
}

// GetOutcomeSummary 统计最近days天的结果标签。
// 坐席只能查看自己的统计，管理员可以通过actorId查看他人或全部。
func (ic *InteractionController) GetOutcomeSummary(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	days, err := strconv.Atoi(c.DefaultQuery("days", "1"))
	if err != nil || days <= 0 || days > 366 {
		utils.HandleError(c, utils.CreateBadRequestError("days必须是1到366之间的整数"))
		return
	}

	actorID := user.ID
	if models.UserRole(user.Role) != models.UserRoleCALLER {
		actorID = c.Query("actorId")
	}

	since := service.StageHistoryWindow(ic.clock.Now(), days)
	summary, err := ic.ledger.OutcomeSummary(c.Request.Context(), actorID, since)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.LogInfo(map[string]interface{}{
		"actorId": actorID,
		"since":   since.Format(time.RFC3339),
	}, "获取结果统计")
	utils.SuccessResponse(c, summary, "")
}
