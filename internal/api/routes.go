package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	cameras := s.router.Group("/cameras")
	{
		cameras.GET("", s.cameraHandler.ListCameras)
		cameras.POST("", s.cameraHandler.StartCamera)
		cameras.POST("/start-all", s.cameraHandler.StartAll)
		cameras.POST("/stop-all", s.cameraHandler.StopAll)
		cameras.GET("/:camera_id", s.cameraHandler.GetCamera)
		cameras.POST("/:camera_id/start", s.cameraHandler.StartStoredCamera)
		cameras.POST("/:camera_id/stop", s.cameraHandler.StopCamera)
		cameras.GET("/:camera_id/frame", s.cameraHandler.GetLatestFrame)
		cameras.GET("/:camera_id/mjpeg", s.cameraHandler.StreamMJPEG)
		cameras.GET("/:camera_id/detections", s.cameraHandler.GetDetections)
		cameras.GET("/:camera_id/events", s.cameraHandler.GetDetectionHistory)
		cameras.GET("/:camera_id/recordings", s.recordingHandler.ListRecordings)
	}

	recordings := s.router.Group("/recordings")
	{
		recordings.GET("/:id/file", s.recordingHandler.StreamRecording)
	}

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}
}
